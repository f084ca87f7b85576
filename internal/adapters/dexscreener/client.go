package dexscreener

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/dexscalper/internal/adapters/httpclient"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	defaultBase    = "https://api.dexscreener.com"
	defaultChainID = "solana"

	// token-pairs: 300/min → 3/s
	ratePerSec = 3
	maxRetries = 1
)

// ErrNoMarketCap: DexScreener no conoce el token o no informa su market cap.
var ErrNoMarketCap = errors.New("dexscreener: market cap not available")

// ErrNoPair: DexScreener no tiene ningún par para el token.
var ErrNoPair = errors.New("dexscreener: no pair for token")

type pair struct {
	PairAddress string   `json:"pairAddress"`
	MarketCap   *float64 `json:"marketCap"`
	FDV         *float64 `json:"fdv"`
	Txns        struct {
		M5 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"m5"`
	} `json:"txns"`
	Volume struct {
		M5 float64 `json:"m5"`
	} `json:"volume"`
}

// Client consulta el market cap de un token en DexScreener.
type Client struct {
	http    *httpclient.Client
	chainID string
}

// NewClient crea un Client. baseURL vacío usa producción.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBase
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:    baseURL,
			RatePerSec: ratePerSec,
			Burst:      3,
			MaxRetries: maxRetries,
		}),
		chainID: defaultChainID,
	}
}

// MarketCap devuelve el market cap en USD del primer par que lo informe.
// Si ningún par trae marketCap se usa el FDV.
func (c *Client) MarketCap(ctx context.Context, tokenAddress string) (float64, error) {
	pairs, err := c.pairs(ctx, tokenAddress)
	if err != nil {
		return 0, fmt.Errorf("dexscreener.MarketCap: %w", err)
	}
	for _, p := range pairs {
		if p.MarketCap != nil && *p.MarketCap > 0 {
			return *p.MarketCap, nil
		}
	}
	for _, p := range pairs {
		if p.FDV != nil && *p.FDV > 0 {
			return *p.FDV, nil
		}
	}
	return 0, fmt.Errorf("dexscreener.MarketCap: %s: %w", tokenAddress, ErrNoMarketCap)
}

// PairActivity devuelve compras, ventas y volumen de los últimos 5 minutos
// del par principal (el primero que devuelve DexScreener).
func (c *Client) PairActivity(ctx context.Context, tokenAddress string) (domain.PairActivity, error) {
	pairs, err := c.pairs(ctx, tokenAddress)
	if err != nil {
		return domain.PairActivity{}, fmt.Errorf("dexscreener.PairActivity: %w", err)
	}
	if len(pairs) == 0 {
		return domain.PairActivity{}, fmt.Errorf("dexscreener.PairActivity: %s: %w", tokenAddress, ErrNoPair)
	}
	p := pairs[0]
	return domain.PairActivity{
		TokenAddress: tokenAddress,
		PairAddress:  p.PairAddress,
		Buys5m:       p.Txns.M5.Buys,
		Sells5m:      p.Txns.M5.Sells,
		Volume5mUSD:  p.Volume.M5,
	}, nil
}

func (c *Client) pairs(ctx context.Context, tokenAddress string) ([]pair, error) {
	var pairs []pair
	path := fmt.Sprintf("/token-pairs/v1/%s/%s", c.chainID, tokenAddress)
	if err := c.http.Get(ctx, path, nil, &pairs); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", tokenAddress, domain.ErrNetwork, err)
	}
	return pairs, nil
}
