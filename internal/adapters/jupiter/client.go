package jupiter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/dexscalper/internal/adapters/httpclient"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	defaultBase = "https://api.jup.ag"
	pricePath   = "/price/v2"

	// Free tier: 600/min. Con 2s de tick y pocas posiciones sobra.
	ratePerSec = 5
	maxRetries = 1
)

type priceResponse struct {
	Data map[string]*priceEntry `json:"data"`
}

type priceEntry struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Price *string `json:"price"`
}

// Client lee precios de Jupiter expresados en la moneda base (vsToken).
type Client struct {
	http    *httpclient.Client
	vsToken string
	now     func() time.Time
}

// NewClient crea un Client. vsToken es la mint de la moneda base (SOL envuelto).
func NewClient(baseURL, vsToken string) *Client {
	if baseURL == "" {
		baseURL = defaultBase
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:    baseURL,
			RatePerSec: ratePerSec,
			Burst:      5,
			MaxRetries: maxRetries,
			Timeout:    5 * time.Second,
		}),
		vsToken: vsToken,
		now:     time.Now,
	}
}

// GetPrice devuelve el precio actual del token en moneda base.
// Sin entrada o con precio null/no positivo devuelve domain.ErrStalePrice.
func (c *Client) GetPrice(ctx context.Context, tokenAddress string) (domain.PriceReading, error) {
	q := url.Values{}
	q.Set("ids", tokenAddress)
	if c.vsToken != "" {
		q.Set("vsToken", c.vsToken)
	}

	var resp priceResponse
	if err := c.http.Get(ctx, pricePath, q, &resp); err != nil {
		return domain.PriceReading{}, fmt.Errorf("jupiter.GetPrice: %s: %w", tokenAddress, err)
	}

	entry := resp.Data[tokenAddress]
	if entry == nil || entry.Price == nil {
		return domain.PriceReading{}, fmt.Errorf("jupiter.GetPrice: %s: no price: %w", tokenAddress, domain.ErrStalePrice)
	}
	price, err := decimal.NewFromString(*entry.Price)
	if err != nil || !price.IsPositive() {
		return domain.PriceReading{}, fmt.Errorf("jupiter.GetPrice: %s: bad price %q: %w", tokenAddress, *entry.Price, domain.ErrStalePrice)
	}

	return domain.PriceReading{
		TokenAddress: tokenAddress,
		Price:        price.InexactFloat64(),
		ObservedAt:   c.now().UTC(),
	}, nil
}
