package domain

import "errors"

// Error taxonomy shared by adapters and the engine. Adapters wrap these with
// fmt.Errorf("pkg.Func: step: %w", ...) so callers classify with errors.Is.
var (
	// ErrNetwork is a transport failure talking to any external endpoint. Recoverable.
	ErrNetwork = errors.New("network error")

	// ErrQuote means the swap provider could not produce a usable quote. Recoverable.
	ErrQuote = errors.New("quote error")

	// ErrSigning is fatal to the intent being signed, not to the process.
	ErrSigning = errors.New("signing error")

	// ErrSignerUnrecoverable means the signer can no longer sign anything
	// (bad key material, wallet gone). Halts the loop.
	ErrSignerUnrecoverable = errors.New("signer unrecoverable")

	// ErrExecutionTimeout is an attempt that did not confirm within the per-attempt timeout.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecutionRejected is a definitive rejection of the swap (e.g. program error). Fatal to the intent.
	ErrExecutionRejected = errors.New("execution rejected")

	// ErrConfiguration is fatal at startup; trading never begins.
	ErrConfiguration = errors.New("configuration error")

	// ErrStalePrice means the gateway has no fresh price for the token.
	ErrStalePrice = errors.New("stale price")

	// ErrIntentInFlight is returned when a token already has an unresolved intent.
	ErrIntentInFlight = errors.New("intent already in flight for token")
)

// FailureKind clasifica el resultado de un intento de ejecución.
type FailureKind int

const (
	KindSuccess FailureKind = iota
	KindRetryable
	KindFatal
)

func (k FailureKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an execution error to retryable or fatal.
// Unknown errors are treated as retryable: the coordinator re-checks
// confirmation before every retry, so a retry never double-spends.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return KindSuccess
	case errors.Is(err, ErrSigning),
		errors.Is(err, ErrSignerUnrecoverable),
		errors.Is(err, ErrExecutionRejected),
		errors.Is(err, ErrConfiguration):
		return KindFatal
	default:
		return KindRetryable
	}
}
