package domain

import "time"

// Side is the direction of a swap relative to the token being traded.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExecutionIntent asks the coordinator for one swap attempt.
// Created by the position state machine, discarded after resolution.
type ExecutionIntent struct {
	ID             string
	PositionID     string
	TokenAddress   string
	Side           Side
	Amount         float64 // input asset, UI units (base currency on buy, token on sell)
	AmountDecimals int     // decimals of the input asset
	MaxSlippageBps int
	AttemptNumber  int // 1-based

	// ReferencePrice is the last known price, used when a sell turns out to
	// have filled without a fresh quote (the wallet no longer holds the token).
	ReferencePrice float64
}

// QuoteRequest is what the coordinator asks the swap provider to price.
type QuoteRequest struct {
	TokenAddress   string
	Side           Side
	Amount         float64
	AmountDecimals int
	MaxSlippageBps int
}

// Quote is an executable swap offer. Transaction is the unsigned wire transaction.
type Quote struct {
	TokenAddress  string
	Side          Side
	InAmount      float64 // UI units
	OutAmount     float64 // UI units
	InDecimals    int
	OutDecimals   int
	ExpectedPrice float64 // base currency per token
	SlippageBps   int
	Transaction   []byte
	QuotedAt      time.Time
}

// SignedTransaction is a fully signed wire transaction ready to broadcast.
type SignedTransaction struct {
	Raw       []byte
	Signature string // base58 of the first signature, doubles as the tx reference
}

// TxResult is the provider's view of a broadcast transaction. TxRef may be set
// even when Execute returns an error (broadcast succeeded, confirmation did not).
type TxResult struct {
	TxRef     string
	Confirmed bool
	Slot      uint64
}

// TxState is the confirmation state of a previously broadcast transaction.
type TxState int

const (
	TxUnknown TxState = iota
	TxPending
	TxConfirmed
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TxStatus is the answer to a confirmation query.
type TxStatus struct {
	TxRef string
	State TxState
	Err   string
}

// ExecutionResult is the resolution of one intent attempt.
type ExecutionResult struct {
	Intent        ExecutionIntent
	Kind          FailureKind
	ExecutedPrice float64
	TxRef         string
	OutAmount     float64
	OutDecimals   int
	Err           error
	ResolvedAt    time.Time

	// Unresolved is set on a failure when a transaction was broadcast and its
	// outcome is still unknown: it may yet land.
	Unresolved bool
}

// Succeeded is shorthand for Kind == KindSuccess.
func (r ExecutionResult) Succeeded() bool {
	return r.Kind == KindSuccess
}

// PriceReading is a pull-based price observation for one token.
type PriceReading struct {
	TokenAddress string
	Price        float64 // base currency per token
	ObservedAt   time.Time
}

// PairActivity is the short-window trading activity of a token's main pair.
type PairActivity struct {
	TokenAddress string
	PairAddress  string
	Buys5m       int
	Sells5m      int
	Volume5mUSD  float64
}

// BuySellRatio5m divides buys by sells; no sells counts as one.
func (a PairActivity) BuySellRatio5m() float64 {
	sells := a.Sells5m
	if sells <= 0 {
		sells = 1
	}
	return float64(a.Buys5m) / float64(sells)
}
