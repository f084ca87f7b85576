package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Clamps(t *testing.T) {
	assert.InDelta(t, 0.1, Normalize(500_000, 5_000_000), 1e-12)
	assert.Equal(t, 1.0, Normalize(6_000_000, 5_000_000))
	assert.Equal(t, 0.0, Normalize(-3, 50))
	assert.Equal(t, 0.0, Normalize(10, 0))
	assert.Equal(t, 0.0, Normalize(math.NaN(), 10))
}

func TestBuySellRatio_Basic(t *testing.T) {
	assert.InDelta(t, 3.0, BuySellRatio(120, 40, 5), 1e-12)
}

func TestBuySellRatio_ZeroSellsUsesCeiling(t *testing.T) {
	r := BuySellRatio(10, 0, 5)
	assert.Equal(t, 5.0, r)
	assert.False(t, math.IsInf(r, 0))

	assert.Equal(t, 0.0, BuySellRatio(0, 0, 5), "sin actividad no hay ratio")
}

func TestBuySellRatio_CappedAtCeiling(t *testing.T) {
	assert.Equal(t, 5.0, BuySellRatio(900, 10, 5))
}

func TestLiquidityToMarketCap(t *testing.T) {
	assert.InDelta(t, 0.25, LiquidityToMarketCap(500_000, 2_000_000), 1e-12)
	assert.Equal(t, 0.0, LiquidityToMarketCap(500_000, 0))
	assert.Equal(t, 0.0, LiquidityToMarketCap(0, 2_000_000))
}

func TestProfitPct(t *testing.T) {
	assert.InDelta(t, 15.0, ProfitPct(100, 115), 1e-9)
	assert.InDelta(t, -10.0, ProfitPct(100, 90), 1e-9)
	assert.Equal(t, 0.0, ProfitPct(0, 90))
}

func TestRealizedPnL(t *testing.T) {
	// 0.1 SOL comprados a 100, vendidos a 115 → +0.015 SOL
	assert.InDelta(t, 0.015, RealizedPnL(0.1, 100, 115), 1e-12)
	assert.InDelta(t, -0.005, RealizedPnL(0.1, 100, 95), 1e-12)
	assert.Equal(t, 0.0, RealizedPnL(0.1, 0, 95))
}
