package domain

import "strings"

// FailureReason explica por qué un pool no pasó un filtro.
type FailureReason string

const (
	ReasonMarketCapOutOfRange FailureReason = "market_cap_out_of_range"
	ReasonVolumeBelowFloor    FailureReason = "volume_below_floor"
	ReasonNonPositiveMomentum FailureReason = "non_positive_momentum"
	ReasonBuySellRatioLow     FailureReason = "buy_sell_ratio_below_threshold"
	ReasonLiquidityBelowFloor FailureReason = "liquidity_below_floor"
)

// MissingFieldReason construye el motivo de fallo para un campo obligatorio ausente.
func MissingFieldReason(f Field) FailureReason {
	return FailureReason("missing:" + string(f))
}

// CandidateScore es el resultado de puntuar y filtrar un PoolSnapshot.
// Se recalcula en cada ciclo y nunca se persiste.
type CandidateScore struct {
	TokenAddress   string
	Score          float64
	PassedFilters  bool
	FailureReasons []FailureReason

	// Usados para desempate y presentación.
	LiquidityUSD float64
	BuySellRatio float64
	Snapshot     PoolSnapshot
}

// ReasonsString une los motivos de fallo para logs y tablas.
func (c CandidateScore) ReasonsString() string {
	if len(c.FailureReasons) == 0 {
		return ""
	}
	parts := make([]string, len(c.FailureReasons))
	for i, r := range c.FailureReasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// HasReason devuelve true si r está entre los motivos de fallo.
func (c CandidateScore) HasReason(r FailureReason) bool {
	for _, fr := range c.FailureReasons {
		if fr == r {
			return true
		}
	}
	return false
}
