package scanner

import (
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Weights pondera cada señal normalizada del score compuesto.
type Weights struct {
	Volume       float64
	Momentum     float64
	BuySellRatio float64
	Liquidity    float64
}

// DefaultWeights: volumen 0.4, momentum 0.3, ratio 0.2, liquidez/mcap 0.1.
func DefaultWeights() Weights {
	return Weights{Volume: 0.4, Momentum: 0.3, BuySellRatio: 0.2, Liquidity: 0.1}
}

// Caps son los valores que saturan cada señal a 1 al normalizar.
// El cap del ratio es FilterConfig.BuySellRatioCeiling.
type Caps struct {
	VolumeUSD            float64
	MomentumPct          float64
	LiquidityToMarketCap float64
}

// DefaultCaps: 5M USD de volumen, +50% de momentum, liquidez = 50% del mcap.
func DefaultCaps() Caps {
	return Caps{VolumeUSD: 5_000_000, MomentumPct: 50, LiquidityToMarketCap: 0.5}
}

// Scorer puntúa y filtra snapshots. Es una función pura: sin I/O, sin reloj.
type Scorer struct {
	filter  *Filter
	weights Weights
	caps    Caps
	ceiling float64
}

// NewScorer crea un Scorer.
func NewScorer(filter FilterConfig, weights Weights, caps Caps) *Scorer {
	return &Scorer{
		filter:  NewFilter(filter),
		weights: weights,
		caps:    caps,
		ceiling: filter.BuySellRatioCeiling,
	}
}

// Score calcula el CandidateScore de p. Los campos ausentes aportan 0 al score
// pero además hacen fallar el filtro si son obligatorios.
func (s *Scorer) Score(p domain.PoolSnapshot) domain.CandidateScore {
	reasons := s.filter.Check(p)

	var ratio float64
	if p.Has(domain.FieldBuyCount) && p.Has(domain.FieldSellCount) {
		ratio = domain.BuySellRatio(p.BuyCount, p.SellCount, s.ceiling)
	}

	var volume, momentum, liqRatio float64
	if p.Has(domain.FieldVolume24h) {
		volume = domain.Normalize(p.Volume24hUSD, s.caps.VolumeUSD)
	}
	if p.Has(domain.FieldPriceChange) {
		momentum = domain.Normalize(p.PriceChangePct, s.caps.MomentumPct)
	}
	if p.Has(domain.FieldLiquidity) && p.Has(domain.FieldMarketCap) {
		liqRatio = domain.Normalize(domain.LiquidityToMarketCap(p.LiquidityUSD, p.MarketCapUSD), s.caps.LiquidityToMarketCap)
	}

	score := s.weights.Volume*volume +
		s.weights.Momentum*momentum +
		s.weights.BuySellRatio*domain.Normalize(ratio, s.ceiling) +
		s.weights.Liquidity*liqRatio

	liquidity := 0.0
	if p.Has(domain.FieldLiquidity) {
		liquidity = p.LiquidityUSD
	}

	return domain.CandidateScore{
		TokenAddress:   p.TokenAddress,
		Score:          score,
		PassedFilters:  len(reasons) == 0,
		FailureReasons: reasons,
		LiquidityUSD:   liquidity,
		BuySellRatio:   ratio,
		Snapshot:       p,
	}
}
