package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/application/position"
	"github.com/alejandrodnm/dexscalper/internal/application/scanner"
	"github.com/alejandrodnm/dexscalper/internal/domain"
	"github.com/alejandrodnm/dexscalper/internal/ports"
)

// ScannerService es la interfaz mínima que el engine necesita del scanner.
// Desacopla el engine de *scanner.Scanner concreto.
type ScannerService interface {
	Fetch(ctx context.Context) ([]domain.PoolSnapshot, error)
	Evaluate(ctx context.Context, snaps []domain.PoolSnapshot) []domain.CandidateScore
	ScanOnce(ctx context.Context) ([]domain.CandidateScore, error)
}

// Executor is the part of the execution coordinator the loop drives.
type Executor interface {
	Dispatch(ctx context.Context, intent domain.ExecutionIntent) error
	Drain() []domain.ExecutionResult
	Ready() <-chan struct{}
	Wait()
}

// Config holds the loop cadence and admission rules.
type Config struct {
	ScanInterval    time.Duration
	MonitorInterval time.Duration
	PriceTimeout    time.Duration
	PriceWorkers    int

	MaxConcurrent   int
	SizeBase        float64
	MinBaseBalance  float64
	BuyCooldown     time.Duration
	BlacklistTraded bool

	// NotifyCandidates sends every scored cycle to the notifier.
	NotifyCandidates bool

	// Last check before buying, against the pair's 5-minute activity.
	// Only applied when a PairConfirmer is set.
	ConfirmMinBuySellRatio float64
	ConfirmMinVolume5mUSD  float64
}

// DefaultConfig returns the default loop settings.
func DefaultConfig() Config {
	return Config{
		ScanInterval:    10 * time.Second,
		MonitorInterval: 2 * time.Second,
		PriceTimeout:    5 * time.Second,
		PriceWorkers:    8,
		MaxConcurrent:   1,
		SizeBase:        0.1,
		MinBaseBalance:  0.0001,
		BuyCooldown:     15 * time.Second,
		BlacklistTraded: true,

		ConfirmMinBuySellRatio: 1.3,
		ConfirmMinVolume5mUSD:  100_000,
	}
}

// Engine is the scan loop. It owns the capacity counter, admits new positions
// once per scan cycle and ticks every open position for exits.
type Engine struct {
	cfg      Config
	scanner  ScannerService
	machine  *position.Machine
	exec     Executor
	prices   ports.PriceGateway
	balance  ports.BalanceProvider // optional
	ledger   ports.Ledger          // optional
	notifier ports.Notifier        // optional
	confirm  ports.PairConfirmer   // optional
	now      func() time.Time

	// loop-owned
	lastSeen      map[string]time.Time
	traded        map[string]bool
	cooldownUntil time.Time

	mu          sync.Mutex
	openSlots   int // mutated only by admit
	running     bool
	startedAt   time.Time
	lastScanAt  time.Time
	lastScanErr string
	basePnL     float64 // realized PnL already in the ledger at start
	sessionPnL  float64
	cancel      context.CancelFunc
	done        chan struct{}
	runErr      error
}

// New creates the engine. balance, ledger and notifier may be nil.
// For ScanOnce-only use machine, exec and prices may be nil too.
func New(
	cfg Config,
	scanner ScannerService,
	machine *position.Machine,
	exec Executor,
	prices ports.PriceGateway,
	balance ports.BalanceProvider,
	ledger ports.Ledger,
	notifier ports.Notifier,
) *Engine {
	def := DefaultConfig()
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = def.ScanInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = def.PriceTimeout
	}
	if cfg.PriceWorkers <= 0 {
		cfg.PriceWorkers = def.PriceWorkers
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Engine{
		cfg:       cfg,
		scanner:   scanner,
		machine:   machine,
		exec:      exec,
		prices:    prices,
		balance:   balance,
		ledger:    ledger,
		notifier:  notifier,
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
		traded:    make(map[string]bool),
		openSlots: cfg.MaxConcurrent,
	}
}

// SetPairConfirmer enables the pre-entry check on the pair's recent activity.
func (e *Engine) SetPairConfirmer(c ports.PairConfirmer) {
	e.confirm = c
}

// ScanOnce fetches and scores one batch without touching positions.
func (e *Engine) ScanOnce(ctx context.Context) ([]domain.CandidateScore, error) {
	cands, err := e.scanner.ScanOnce(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.ScanOnce: %w", err)
	}
	return cands, nil
}

// Run executes the loop until ctx is cancelled or the signer becomes unusable.
// On exit it waits for in-flight attempts and applies their results.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: starting",
		"scan_interval", e.cfg.ScanInterval,
		"monitor_interval", e.cfg.MonitorInterval,
		"max_concurrent", e.cfg.MaxConcurrent,
	)
	e.markStarted(ctx)
	defer e.markStopped()

	err := e.loop(ctx)

	// No attempt is cancelled mid-flight: wait, then record the outcomes.
	e.exec.Wait()
	if herr := e.handleResults(context.WithoutCancel(ctx)); herr != nil && err == nil {
		err = herr
	}
	if err != nil {
		slog.Error("engine: halted", "err", err)
		return fmt.Errorf("engine.Run: %w", err)
	}
	slog.Info("engine: stopped")
	return nil
}

func (e *Engine) loop(ctx context.Context) error {
	if err := e.scanCycle(ctx); err != nil {
		return err
	}

	scanT := time.NewTicker(e.cfg.ScanInterval)
	defer scanT.Stop()
	monT := time.NewTicker(e.cfg.MonitorInterval)
	defer monT.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case <-scanT.C:
			err = e.scanCycle(ctx)
		case <-monT.C:
			err = e.monitorTick(ctx)
		case <-e.exec.Ready():
			err = e.handleResults(ctx)
		}
		if err != nil {
			return err
		}
	}
}

// scanCycle: results → fetch → monotonic filter → score → admit → monitor.
// A fetch failure skips scoring and admission but never stops the loop.
func (e *Engine) scanCycle(ctx context.Context) error {
	start := e.now()
	if err := e.handleResults(ctx); err != nil {
		return err
	}

	snaps, err := e.scanner.Fetch(ctx)
	if err != nil {
		e.setScanResult(start, err)
		slog.Warn("engine: fetch failed, skipping cycle", "err", err)
		return e.monitorTick(ctx)
	}

	snaps = e.dropNonMonotonic(snaps)
	cands := e.scanner.Evaluate(ctx, snaps)
	if e.cfg.NotifyCandidates && e.notifier != nil {
		if err := e.notifier.NotifyCandidates(ctx, scanner.Rank(cands, len(cands))); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}
	}
	admitted := e.admit(ctx, cands)
	e.setScanResult(start, nil)

	slog.Info("engine: scan cycle complete",
		"pools", len(snaps),
		"admitted", admitted,
		"open", e.machine.OpenCount(),
		"duration", e.now().Sub(start).Round(time.Millisecond),
	)
	return e.monitorTick(ctx)
}

// dropNonMonotonic discards snapshots not newer than the last accepted one for the same token.
func (e *Engine) dropNonMonotonic(snaps []domain.PoolSnapshot) []domain.PoolSnapshot {
	out := snaps[:0]
	for _, s := range snaps {
		if last, ok := e.lastSeen[s.TokenAddress]; ok && !s.Timestamp.After(last) {
			slog.Debug("engine: dropping out-of-order snapshot", "token", s.TokenAddress, "ts", s.Timestamp, "last", last)
			continue
		}
		e.lastSeen[s.TokenAddress] = s.Timestamp
		out = append(out, s)
	}
	return out
}

// StartLoop runs the loop on its own goroutine.
func (e *Engine) StartLoop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("engine.StartLoop: already running")
	}
	lctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.runErr = nil
	done := e.done
	go func() {
		defer close(done)
		err := e.Run(lctx)
		e.mu.Lock()
		e.runErr = err
		e.mu.Unlock()
	}()
	return nil
}

// StopLoop cancels the cadence and waits until in-flight attempts resolve.
// Returns the loop's exit error, if any.
func (e *Engine) StopLoop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = nil
	return e.runErr
}

// Done is closed when a loop started with StartLoop exits. nil if none started.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() domain.Status {
	var failed []domain.Position
	for _, p := range e.machine.Positions() {
		if p.State == domain.StateFailed {
			failed = append(failed, p)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := domain.Status{
		Running:          e.running,
		OpenPositions:    e.machine.OpenCount(),
		FailedPositions:  failed,
		TotalRealizedPnL: e.basePnL + e.sessionPnL,
		OpenSlots:        e.openSlots,
		MaxPositions:     e.cfg.MaxConcurrent,
		LastScanAt:       e.lastScanAt,
		LastScanError:    e.lastScanErr,
	}
	if e.running {
		st.Uptime = e.now().Sub(e.startedAt)
	}
	return st
}

// Positions returns the live (non-archived) positions.
func (e *Engine) Positions() []domain.Position {
	return e.machine.Positions()
}

func (e *Engine) markStarted(ctx context.Context) {
	base := 0.0
	if e.ledger != nil {
		pnl, err := e.ledger.TotalRealizedPnL(ctx)
		if err != nil {
			slog.Warn("engine: could not read ledger PnL", "err", err)
		} else {
			base = pnl
		}
	}
	e.mu.Lock()
	e.running = true
	e.startedAt = e.now()
	e.basePnL = base
	e.sessionPnL = 0
	e.mu.Unlock()
}

func (e *Engine) markStopped() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func (e *Engine) setScanResult(at time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastScanAt = at
	e.lastScanErr = ""
	if err != nil {
		e.lastScanErr = err.Error()
	}
}
