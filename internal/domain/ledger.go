package domain

import "time"

// ClosedPosition is one append-only ledger row, written when a position reaches Closed.
type ClosedPosition struct {
	Seq                int64 // assigned by the ledger, strictly increasing
	PositionID         string
	TokenAddress       string
	EntryPrice         float64
	ExitPrice          float64
	SizeInBaseCurrency float64
	RealizedPnL        float64
	EntryTimeUTC       time.Time
	ExitTimeUTC        time.Time
	ExitReason         ExitReason
	EntryTxRef         string
	ExitTxRef          string
}

// ClosedFromPosition builds the ledger row for a Closed position.
func ClosedFromPosition(p Position) ClosedPosition {
	return ClosedPosition{
		PositionID:         p.ID,
		TokenAddress:       p.TokenAddress,
		EntryPrice:         p.EntryPrice,
		ExitPrice:          p.ExitPrice,
		SizeInBaseCurrency: p.SizeInBaseCurrency,
		RealizedPnL:        p.RealizedPnL,
		EntryTimeUTC:       p.EntryTimeUTC,
		ExitTimeUTC:        p.ExitTimeUTC,
		ExitReason:         p.ExitReason,
		EntryTxRef:         p.EntryTxRef,
		ExitTxRef:          p.ExitTxRef,
	}
}

// StatusRecord is the structured record emitted on every terminal or
// operator-relevant transition. Failed positions always produce one.
type StatusRecord struct {
	PositionID         string
	TokenAddress       string
	FromState          PositionState
	State              PositionState
	Reason             string
	Error              string
	ManualIntervention bool
	RecordedAt         time.Time
}

// Status is the engine snapshot exposed to the surrounding application.
type Status struct {
	Running          bool
	OpenPositions    int
	FailedPositions  []Position
	TotalRealizedPnL float64
	Uptime           time.Duration
	OpenSlots        int
	MaxPositions     int
	LastScanAt       time.Time
	LastScanError    string
}
