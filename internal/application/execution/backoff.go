package execution

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// BackoffKind selects how the delay between attempts grows.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Config holds the coordinator's retry and timeout settings.
type Config struct {
	Backoff           BackoffKind
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	MaxBuyAttempts  int
	MaxSellAttempts int

	// AttemptTimeout bounds one quote→sign→execute round, confirmation included.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the default retry settings.
func DefaultConfig() Config {
	return Config{
		Backoff:           BackoffExponential,
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 1.5,
		MaxBuyAttempts:    3,
		MaxSellAttempts:   4,
		AttemptTimeout:    30 * time.Second,
	}
}

// RetryPolicy answers "how long to wait" and "how many tries" for the state
// machine, which schedules retries instead of sleeping.
type RetryPolicy struct {
	cfg Config
}

// NewRetryPolicy creates a RetryPolicy. Zero values fall back to DefaultConfig.
func NewRetryPolicy(cfg Config) RetryPolicy {
	def := DefaultConfig()
	if cfg.Backoff == "" {
		cfg.Backoff = def.Backoff
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxBuyAttempts <= 0 {
		cfg.MaxBuyAttempts = def.MaxBuyAttempts
	}
	if cfg.MaxSellAttempts <= 0 {
		cfg.MaxSellAttempts = def.MaxSellAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	return RetryPolicy{cfg: cfg}
}

// MaxAttempts returns the attempt ceiling for side.
func (p RetryPolicy) MaxAttempts(side domain.Side) int {
	if side == domain.SideSell {
		return p.cfg.MaxSellAttempts
	}
	return p.cfg.MaxBuyAttempts
}

// Delay returns the wait after failed attempt number attempt (1-based).
// No jitter: the schedule is deterministic.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := p.newBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop || d > p.cfg.MaxBackoff {
		d = p.cfg.MaxBackoff
	}
	return d
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	if p.cfg.Backoff == BackoffFixed {
		return backoff.NewConstantBackOff(p.cfg.InitialBackoff)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          p.cfg.BackoffMultiplier,
		MaxInterval:         p.cfg.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
