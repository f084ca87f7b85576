package domain

import (
	"fmt"
	"time"
)

// PositionState is a node of the position lifecycle.
type PositionState string

const (
	StateIdle     PositionState = "IDLE"
	StateEntering PositionState = "ENTERING"
	StateOpen     PositionState = "OPEN"
	StateExiting  PositionState = "EXITING"
	StateClosed   PositionState = "CLOSED"
	StateFailed   PositionState = "FAILED"
)

// IsTerminal returns true for Closed and Failed.
func (s PositionState) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

var allowedTransitions = map[PositionState][]PositionState{
	StateIdle:     {StateEntering},
	StateEntering: {StateOpen, StateFailed},
	StateOpen:     {StateExiting},
	StateExiting:  {StateClosed, StateFailed},
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func CanTransition(from, to PositionState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ExitReason records why a position left Open.
type ExitReason string

const (
	ExitNone         ExitReason = ""
	ExitProfitTarget ExitReason = "profit_target"
	ExitMaxHold      ExitReason = "max_hold"
	ExitStalePrice   ExitReason = "stale_price"
)

// Default risk rules.
const (
	DefaultTargetProfitPct = 15.0
	DefaultMaxHoldSeconds  = 1200
)

// profitEpsilon absorbs float error so 115/100 counts as +15%.
const profitEpsilon = 1e-9

// Position is one trade, exclusively owned by the position state machine.
type Position struct {
	ID                 string
	TokenAddress       string
	EntryPrice         float64
	EntryTimeUTC       time.Time
	SizeInBaseCurrency float64
	State              PositionState

	TargetProfitPct             float64
	MaxHoldSeconds              int
	CurrentSlippageToleranceBps int
	AttemptCount                int

	TokenAmount   float64 // received on buy, sold on exit
	TokenDecimals int

	LastPrice        float64
	LastFreshPriceAt time.Time
	NextAttemptAt    time.Time // zero = no attempt scheduled
	InFlight         bool

	ExitReason  ExitReason
	ExitPrice   float64
	ExitTimeUTC time.Time
	RealizedPnL float64

	EntryTxRef string
	ExitTxRef  string

	FailureReason      string
	LastError          string
	ManualIntervention bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MaxHold returns MaxHoldSeconds as a Duration.
func (p Position) MaxHold() time.Duration {
	return time.Duration(p.MaxHoldSeconds) * time.Second
}

// Held returns how long the position has been open at now.
func (p Position) Held(now time.Time) time.Duration {
	if p.EntryTimeUTC.IsZero() {
		return 0
	}
	return now.Sub(p.EntryTimeUTC)
}

// ProfitPctAt returns the unrealized profit percentage at price.
func (p Position) ProfitPctAt(price float64) float64 {
	return ProfitPct(p.EntryPrice, price)
}

// EvaluateExit decides whether an Open position must exit at (price, now).
// The profit check runs first, so when both the profit target and the
// max-hold deadline are met on the same tick the reason is ExitProfitTarget.
func (p Position) EvaluateExit(price float64, now time.Time) (ExitReason, bool) {
	if p.EntryPrice > 0 && price > 0 && p.ProfitPctAt(price)+profitEpsilon >= p.TargetProfitPct {
		return ExitProfitTarget, true
	}
	if p.MaxHoldSeconds > 0 && p.Held(now) >= p.MaxHold() {
		return ExitMaxHold, true
	}
	return ExitNone, false
}

// IsStale reports whether the last fresh price is older than timeout at now.
func (p Position) IsStale(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || p.LastFreshPriceAt.IsZero() {
		return false
	}
	return now.Sub(p.LastFreshPriceAt) > timeout
}

// String is used in log lines.
func (p Position) String() string {
	return fmt.Sprintf("%s[%s %s attempt=%d]", p.ID, p.TokenAddress, p.State, p.AttemptCount)
}
