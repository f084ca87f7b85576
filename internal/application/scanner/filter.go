package scanner

import (
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// FilterConfig contiene los umbrales que un pool debe superar para ser candidato.
type FilterConfig struct {
	// MinMarketCapUSD y MaxMarketCapUSD delimitan el rango de market cap (ambos inclusivos).
	MinMarketCapUSD float64
	MaxMarketCapUSD float64
	// MinVolume24hUSD descarta pools con poco volumen.
	MinVolume24hUSD float64
	// MinBuySellRatio es el mínimo de buys/sells en la ventana de lookback.
	MinBuySellRatio float64
	// BuySellRatioCeiling acota el ratio cuando sells = 0.
	BuySellRatioCeiling float64
	// MinLiquidityUSD descarta pools poco líquidos. 0 desactiva el filtro.
	MinLiquidityUSD float64
}

// DefaultFilterConfig devuelve los umbrales por defecto.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinMarketCapUSD:     500_000,
		MaxMarketCapUSD:     40_000_000,
		MinVolume24hUSD:     100_000,
		MinBuySellRatio:     1.3,
		BuySellRatioCeiling: 5,
		MinLiquidityUSD:     0,
	}
}

// Filter evalúa los filtros sobre un PoolSnapshot.
type Filter struct {
	cfg FilterConfig
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Check devuelve todos los motivos de fallo, en orden fijo: primero los campos
// obligatorios ausentes, luego market cap, volumen, momentum, ratio y liquidez.
// No corta en el primer fallo. Un campo ausente no se evalúa además contra su umbral.
// Lista vacía = pasa.
func (f *Filter) Check(p domain.PoolSnapshot) []domain.FailureReason {
	var reasons []domain.FailureReason
	for _, field := range p.MissingRequired() {
		reasons = append(reasons, domain.MissingFieldReason(field))
	}

	if p.Has(domain.FieldMarketCap) &&
		(p.MarketCapUSD < f.cfg.MinMarketCapUSD || p.MarketCapUSD > f.cfg.MaxMarketCapUSD) {
		reasons = append(reasons, domain.ReasonMarketCapOutOfRange)
	}
	if p.Has(domain.FieldVolume24h) && p.Volume24hUSD < f.cfg.MinVolume24hUSD {
		reasons = append(reasons, domain.ReasonVolumeBelowFloor)
	}
	if p.Has(domain.FieldPriceChange) && !(p.PriceChangePct > 0) {
		reasons = append(reasons, domain.ReasonNonPositiveMomentum)
	}
	if p.Has(domain.FieldBuyCount) && p.Has(domain.FieldSellCount) &&
		f.ratio(p) < f.cfg.MinBuySellRatio {
		reasons = append(reasons, domain.ReasonBuySellRatioLow)
	}
	// Liquidez opcional: si no viene no se filtra por ella.
	if f.cfg.MinLiquidityUSD > 0 && p.Has(domain.FieldLiquidity) && p.LiquidityUSD < f.cfg.MinLiquidityUSD {
		reasons = append(reasons, domain.ReasonLiquidityBelowFloor)
	}
	return reasons
}

func (f *Filter) ratio(p domain.PoolSnapshot) float64 {
	return domain.BuySellRatio(p.BuyCount, p.SellCount, f.cfg.BuySellRatioCeiling)
}
