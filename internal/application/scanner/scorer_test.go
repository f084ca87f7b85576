package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

func newTestScorer() *Scorer {
	return NewScorer(DefaultFilterConfig(), DefaultWeights(), DefaultCaps())
}

// examplePool: mcap 2M, vol 500k, +5%, 120 buys / 40 sells, sin liquidez informada.
func examplePool() domain.PoolSnapshot {
	return domain.PoolSnapshot{
		TokenAddress:   "tokA",
		MarketCapUSD:   2_000_000,
		Volume24hUSD:   500_000,
		PriceChangePct: 5,
		BuyCount:       120,
		SellCount:      40,
		Timestamp:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Missing:        []domain.Field{domain.FieldLiquidity},
	}
}

func TestScorer_WorkedExample(t *testing.T) {
	c := newTestScorer().Score(examplePool())

	assert.True(t, c.PassedFilters)
	assert.Empty(t, c.FailureReasons)
	// 0.4·0.1 + 0.3·0.1 + 0.2·(3/5) + 0.1·0
	assert.InDelta(t, 0.19, c.Score, 1e-9)
	assert.InDelta(t, 3.0, c.BuySellRatio, 1e-9)
}

func TestScorer_MarketCapOutOfRangeFails(t *testing.T) {
	s := newTestScorer()
	for _, mcap := range []float64{41_000_000, 499_999, 0} {
		p := examplePool()
		p.MarketCapUSD = mcap
		c := s.Score(p)
		assert.False(t, c.PassedFilters, "mcap=%v", mcap)
		assert.Equal(t, []domain.FailureReason{domain.ReasonMarketCapOutOfRange}, c.FailureReasons)
	}
}

func TestScorer_MarketCapBoundsInclusive(t *testing.T) {
	s := newTestScorer()
	for _, mcap := range []float64{500_000, 40_000_000} {
		p := examplePool()
		p.MarketCapUSD = mcap
		assert.True(t, s.Score(p).PassedFilters, "mcap=%v", mcap)
	}
}

func TestScorer_Deterministic(t *testing.T) {
	s := newTestScorer()
	p := examplePool()
	first := s.Score(p)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, s.Score(p))
	}
}

func TestScorer_CollectsAllReasonsInOrder(t *testing.T) {
	p := domain.PoolSnapshot{
		TokenAddress:   "bad",
		MarketCapUSD:   50_000_000,
		Volume24hUSD:   10,
		PriceChangePct: -2,
		BuyCount:       10,
		SellCount:      20,
	}
	c := newTestScorer().Score(p)

	assert.False(t, c.PassedFilters)
	assert.Equal(t, []domain.FailureReason{
		domain.ReasonMarketCapOutOfRange,
		domain.ReasonVolumeBelowFloor,
		domain.ReasonNonPositiveMomentum,
		domain.ReasonBuySellRatioLow,
	}, c.FailureReasons)
}

func TestScorer_MissingRequiredFieldsFail(t *testing.T) {
	p := examplePool()
	p.MarkMissing(domain.FieldMarketCap)
	p.MarkMissing(domain.FieldSellCount)
	p.MarketCapUSD = 0

	c := newTestScorer().Score(p)

	require.False(t, c.PassedFilters)
	assert.Equal(t, []domain.FailureReason{
		domain.MissingFieldReason(domain.FieldMarketCap),
		domain.MissingFieldReason(domain.FieldSellCount),
	}, c.FailureReasons)
	assert.Equal(t, "missing:market_cap_usd,missing:sell_count", c.ReasonsString())
}

func TestScorer_ZeroSellsUsesCeiling(t *testing.T) {
	p := examplePool()
	p.SellCount = 0

	c := newTestScorer().Score(p)

	assert.True(t, c.PassedFilters)
	assert.Equal(t, 5.0, c.BuySellRatio)
	// el ratio satura: 0.04 + 0.03 + 0.2
	assert.InDelta(t, 0.27, c.Score, 1e-9)
}

func TestScorer_LiquidityComponent(t *testing.T) {
	p := examplePool()
	p.ClearMissing(domain.FieldLiquidity)
	p.LiquidityUSD = 500_000 // 0.25 del mcap → 0.5 normalizado

	c := newTestScorer().Score(p)

	assert.InDelta(t, 0.24, c.Score, 1e-9)
	assert.Equal(t, 500_000.0, c.LiquidityUSD)
}

func TestScorer_LiquidityFloor(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.MinLiquidityUSD = 100_000
	s := NewScorer(cfg, DefaultWeights(), DefaultCaps())

	p := examplePool()
	assert.True(t, s.Score(p).PassedFilters, "liquidez ausente no filtra")

	p.ClearMissing(domain.FieldLiquidity)
	p.LiquidityUSD = 50_000
	c := s.Score(p)
	assert.False(t, c.PassedFilters)
	assert.True(t, c.HasReason(domain.ReasonLiquidityBelowFloor))
}
