package gecko_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dexscalper/internal/adapters/gecko"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

func TestFetchTrendingPools_Success(t *testing.T) {
	data, err := os.ReadFile("../../../testdata/fixtures/gecko_trending_pools.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/solana/trending_pools", r.URL.Path)
		assert.Equal(t, "base_token", r.URL.Query().Get("include"))
		assert.Equal(t, "1h", r.URL.Query().Get("duration"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	c, err := gecko.NewClient(gecko.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	snaps, err := c.FetchTrendingPools(context.Background())

	require.NoError(t, err)
	require.Len(t, snaps, 2, "pools without base token are skipped")

	s := snaps[0]
	assert.Equal(t, "BoNKmint1111111111111111111111111111111", s.TokenAddress)
	assert.Equal(t, "BONKER / SOL", s.Name)
	assert.InDelta(t, 2_000_000.5, s.MarketCapUSD, 1e-6)
	assert.InDelta(t, 350_000.25, s.LiquidityUSD, 1e-6)
	assert.InDelta(t, 500_000, s.Volume24hUSD, 1e-6)
	assert.InDelta(t, 5.1, s.PriceChangePct, 1e-9)
	assert.Equal(t, 120, s.BuyCount)
	assert.Equal(t, 40, s.SellCount)
	assert.InDelta(t, 0.00123, s.PriceUSD, 1e-12)
	assert.Empty(t, s.Missing)
	assert.False(t, s.Timestamp.IsZero())

	n := snaps[1]
	assert.False(t, n.Has(domain.FieldMarketCap))
	assert.False(t, n.Has(domain.FieldLiquidity))
	assert.False(t, n.Has(domain.FieldSellCount))
	assert.True(t, n.Has(domain.FieldBuyCount))
	assert.Equal(t, []domain.Field{domain.FieldMarketCap, domain.FieldSellCount}, n.MissingRequired())
}

func TestFetchTrendingPools_LookbackSelectsWindow(t *testing.T) {
	data, err := os.ReadFile("../../../testdata/fixtures/gecko_trending_pools.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "24h", r.URL.Query().Get("duration"))
		w.Write(data)
	}))
	defer srv.Close()

	c, err := gecko.NewClient(gecko.Config{BaseURL: srv.URL, Lookback: "h24"})
	require.NoError(t, err)

	snaps, err := c.FetchTrendingPools(context.Background())

	require.NoError(t, err)
	assert.InDelta(t, 40.0, snaps[0].PriceChangePct, 1e-9)
	assert.Equal(t, 2000, snaps[0].BuyCount)
	assert.False(t, snaps[1].Has(domain.FieldBuyCount), "no h24 transactions")
}

func TestFetchTrendingPools_ServerErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := gecko.NewClient(gecko.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.FetchTrendingPools(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestNewClient_InvalidLookback(t *testing.T) {
	_, err := gecko.NewClient(gecko.Config{Lookback: "h3"})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
