package gecko

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/dexscalper/internal/adapters/httpclient"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	defaultBase    = "https://api.geckoterminal.com/api/v2"
	defaultNetwork = "solana"

	// Plan público: 30 llamadas/min. Usamos la mitad.
	ratePerSec = 0.25
	maxRetries = 2
)

// durations traduce la ventana de lookback al parámetro duration del endpoint.
var durations = map[string]string{
	"m5":  "5m",
	"h1":  "1h",
	"h6":  "6h",
	"h24": "24h",
}

// Config configura el cliente de GeckoTerminal.
type Config struct {
	BaseURL  string
	Network  string
	Lookback string // m5 | h1 | h6 | h24
	Pages    int
}

// Client obtiene el feed de trending pools de GeckoTerminal.
type Client struct {
	http     *httpclient.Client
	network  string
	lookback string
	pages    int
	now      func() time.Time
}

// NewClient crea un Client. Campos vacíos usan producción, solana, h1 y 1 página.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.Network == "" {
		cfg.Network = defaultNetwork
	}
	if cfg.Lookback == "" {
		cfg.Lookback = "h1"
	}
	if _, ok := durations[cfg.Lookback]; !ok {
		return nil, fmt.Errorf("gecko.NewClient: lookback %q: %w", cfg.Lookback, domain.ErrConfiguration)
	}
	if cfg.Pages <= 0 {
		cfg.Pages = 1
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:    cfg.BaseURL,
			RatePerSec: ratePerSec,
			Burst:      cfg.Pages,
			MaxRetries: maxRetries,
		}),
		network:  cfg.Network,
		lookback: cfg.Lookback,
		pages:    cfg.Pages,
		now:      time.Now,
	}, nil
}

// FetchTrendingPools devuelve un PoolSnapshot por pool trending.
// Los campos null se marcan como Missing, nunca se rellenan con cero.
func (c *Client) FetchTrendingPools(ctx context.Context) ([]domain.PoolSnapshot, error) {
	path := fmt.Sprintf("/networks/%s/trending_pools", c.network)
	fetchedAt := c.now().UTC()

	var snaps []domain.PoolSnapshot
	for page := 1; page <= c.pages; page++ {
		q := url.Values{}
		q.Set("include", "base_token")
		q.Set("page", strconv.Itoa(page))
		q.Set("duration", durations[c.lookback])

		var resp trendingResponse
		if err := c.http.Get(ctx, path, q, &resp); err != nil {
			return nil, fmt.Errorf("gecko.FetchTrendingPools: page %d: %w", page, asNetwork(err))
		}
		for _, r := range resp.Data {
			snap, ok := c.toSnapshot(r, fetchedAt)
			if !ok {
				slog.Debug("gecko: pool without base token, skipping", "pool", r.ID)
				continue
			}
			snaps = append(snaps, snap)
		}
	}

	slog.Debug("gecko: trending pools fetched", "pools", len(snaps), "lookback", c.lookback)
	return snaps, nil
}

func (c *Client) toSnapshot(r poolResource, fetchedAt time.Time) (domain.PoolSnapshot, bool) {
	token := tokenAddress(r)
	if token == "" {
		return domain.PoolSnapshot{}, false
	}
	a := r.Attributes
	s := domain.PoolSnapshot{
		TokenAddress: token,
		PoolAddress:  a.Address,
		Name:         a.Name,
		Timestamp:    fetchedAt,
	}

	setFloat(&s, domain.FieldMarketCap, a.MarketCapUSD, &s.MarketCapUSD)
	setFloat(&s, domain.FieldLiquidity, a.ReserveInUSD, &s.LiquidityUSD)
	setFloat(&s, domain.FieldVolume24h, a.VolumeUSD["h24"], &s.Volume24hUSD)
	setFloat(&s, domain.FieldPriceChange, a.PriceChangePct[c.lookback], &s.PriceChangePct)
	setFloat(&s, domain.FieldPrice, a.BaseTokenPriceUSD, &s.PriceUSD)

	tx := a.Transactions[c.lookback]
	if tx != nil && tx.Buys != nil {
		s.BuyCount = *tx.Buys
	} else {
		s.MarkMissing(domain.FieldBuyCount)
	}
	if tx != nil && tx.Sells != nil {
		s.SellCount = *tx.Sells
	} else {
		s.MarkMissing(domain.FieldSellCount)
	}
	return s, true
}

// tokenAddress extrae la mint del id "solana_<mint>" de la relación base_token.
func tokenAddress(r poolResource) string {
	ref := r.Relationships.BaseToken.Data
	if ref == nil {
		return ""
	}
	_, mint, ok := strings.Cut(ref.ID, "_")
	if !ok {
		return ref.ID
	}
	return mint
}

// setFloat parsea raw en dst o marca el campo como ausente.
func setFloat(s *domain.PoolSnapshot, f domain.Field, raw *string, dst *float64) {
	if raw == nil || *raw == "" {
		s.MarkMissing(f)
		return
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		s.MarkMissing(f)
		return
	}
	*dst = d.InexactFloat64()
}

// asNetwork garantiza que cualquier fallo del feed se trate como recuperable.
func asNetwork(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
}
