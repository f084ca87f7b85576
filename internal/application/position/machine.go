package position

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Config holds the risk rules applied to every position.
type Config struct {
	SizeBase     float64 // base currency spent per entry
	BaseDecimals int

	TargetProfitPct   float64
	MaxHoldSeconds    int
	StalePriceTimeout time.Duration

	EntrySlippageBps       int
	ExitSlippageBps        int
	ExitSlippageStepBps    int
	ExitSlippageCeilingBps int
}

// DefaultConfig returns the default risk rules.
func DefaultConfig() Config {
	return Config{
		SizeBase:               0.1,
		BaseDecimals:           9,
		TargetProfitPct:        domain.DefaultTargetProfitPct,
		MaxHoldSeconds:         domain.DefaultMaxHoldSeconds,
		StalePriceTimeout:      60 * time.Second,
		EntrySlippageBps:       3000,
		ExitSlippageBps:        2000,
		ExitSlippageStepBps:    1000,
		ExitSlippageCeilingBps: 5000,
	}
}

// RetryPolicy decides attempt ceilings and retry delays.
type RetryPolicy interface {
	MaxAttempts(side domain.Side) int
	Delay(attempt int) time.Duration
}

// Transition is what changed in one state machine step. The caller performs
// the side effects: dispatch Intent, append Closed to the ledger, surface Record.
type Transition struct {
	Position domain.Position
	From     domain.PositionState
	Intent   *domain.ExecutionIntent
	Closed   *domain.ClosedPosition
	Record   *domain.StatusRecord
}

// Changed reports whether the position changed state.
func (t Transition) Changed() bool {
	return t.From != t.Position.State
}

// Machine owns every position's lifecycle. All mutation goes through its
// methods under a short mutex; nothing here does I/O.
type Machine struct {
	cfg    Config
	policy RetryPolicy
	now    func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position // active and Failed, by ID
	byToken   map[string]string           // token → position ID while the token is held
	archived  []domain.Position           // Closed
	released  int                         // slots freed since the last TakeReleased
}

// NewMachine creates a Machine.
func NewMachine(cfg Config, policy RetryPolicy) *Machine {
	return &Machine{
		cfg:       cfg,
		policy:    policy,
		now:       time.Now,
		positions: make(map[string]*domain.Position),
		byToken:   make(map[string]string),
	}
}

// Open moves a new position for token from Idle to Entering and returns the
// first buy intent. Capacity is checked by the caller.
func (m *Machine) Open(token string) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, held := m.byToken[token]; held {
		return Transition{}, fmt.Errorf("position.Open: token %s already held by %s", token, id)
	}

	now := m.now().UTC()
	p := &domain.Position{
		ID:                          uuid.NewString(),
		TokenAddress:                token,
		SizeInBaseCurrency:          m.cfg.SizeBase,
		State:                       domain.StateIdle,
		TargetProfitPct:             m.cfg.TargetProfitPct,
		MaxHoldSeconds:              m.cfg.MaxHoldSeconds,
		CurrentSlippageToleranceBps: m.cfg.EntrySlippageBps,
		CreatedAt:                   now,
	}
	m.positions[p.ID] = p
	m.byToken[token] = p.ID

	from := p.State
	m.setState(p, domain.StateEntering, now)
	p.AttemptCount = 1
	intent := m.intentFor(p)
	return Transition{Position: *p, From: from, Intent: &intent}, nil
}

// Apply feeds an execution result into the owning position.
func (m *Machine) Apply(res domain.ExecutionResult) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[res.Intent.PositionID]
	if !ok {
		return Transition{}, fmt.Errorf("position.Apply: unknown position %s", res.Intent.PositionID)
	}
	if res.Intent.AttemptNumber != p.AttemptCount {
		return Transition{Position: *p, From: p.State},
			fmt.Errorf("position.Apply: %s: stale result for attempt %d (current %d)", p.ID, res.Intent.AttemptNumber, p.AttemptCount)
	}

	p.InFlight = false
	from := p.State
	now := res.ResolvedAt
	if now.IsZero() {
		now = m.now().UTC()
	}

	switch {
	case p.State == domain.StateEntering && res.Intent.Side == domain.SideBuy:
		m.applyBuy(p, res, now)
	case p.State == domain.StateExiting && res.Intent.Side == domain.SideSell:
		m.applySell(p, res, now)
	default:
		return Transition{Position: *p, From: from},
			fmt.Errorf("position.Apply: %s: %s result in state %s", p.ID, res.Intent.Side, p.State)
	}

	t := Transition{Position: *p, From: from}
	switch p.State {
	case domain.StateClosed:
		c := domain.ClosedFromPosition(*p)
		t.Closed = &c
		t.Record = m.record(p, from, string(p.ExitReason))
		m.archive(p)
	case domain.StateFailed:
		t.Record = m.record(p, from, p.FailureReason)
	}
	return t, nil
}

func (m *Machine) applyBuy(p *domain.Position, res domain.ExecutionResult, now time.Time) {
	if res.Succeeded() {
		p.EntryPrice = res.ExecutedPrice
		p.EntryTimeUTC = now
		p.EntryTxRef = res.TxRef
		p.TokenAmount = res.OutAmount
		p.TokenDecimals = res.OutDecimals
		p.LastPrice = res.ExecutedPrice
		p.LastFreshPriceAt = now
		p.NextAttemptAt = time.Time{}
		p.LastError = ""
		m.setState(p, domain.StateOpen, now)
		slog.Info("position: opened",
			"position", p.ID,
			"token", p.TokenAddress,
			"entry_price", p.EntryPrice,
			"tokens", p.TokenAmount,
			"tx", p.EntryTxRef,
		)
		return
	}

	p.LastError = errString(res.Err)
	if res.Kind == domain.KindRetryable && p.AttemptCount < m.policy.MaxAttempts(domain.SideBuy) {
		p.NextAttemptAt = now.Add(m.policy.Delay(p.AttemptCount))
		p.UpdatedAt = now
		return
	}

	p.FailureReason = "buy_fatal"
	if res.Kind == domain.KindRetryable {
		p.FailureReason = "buy_retries_exhausted"
	}
	if res.Unresolved {
		// The last buy may still land: keep the token and the slot until an
		// operator checks the wallet.
		p.FailureReason = "buy_unresolved"
		p.EntryTxRef = res.TxRef
		p.ManualIntervention = true
		m.setState(p, domain.StateFailed, now)
		slog.Warn("position: buy outcome unknown, manual check required",
			"position", p.ID,
			"token", p.TokenAddress,
			"tx", res.TxRef,
		)
		return
	}
	m.setState(p, domain.StateFailed, now)
	// Nothing was bought: no risk retained, the token and the slot are free.
	delete(m.byToken, p.TokenAddress)
	m.released++
}

func (m *Machine) applySell(p *domain.Position, res domain.ExecutionResult, now time.Time) {
	if res.Succeeded() {
		p.ExitPrice = res.ExecutedPrice
		p.ExitTimeUTC = now
		p.ExitTxRef = res.TxRef
		p.RealizedPnL = domain.RealizedPnL(p.SizeInBaseCurrency, p.EntryPrice, p.ExitPrice)
		p.NextAttemptAt = time.Time{}
		p.LastError = ""
		m.setState(p, domain.StateClosed, now)
		m.released++
		slog.Info("position: closed",
			"position", p.ID,
			"token", p.TokenAddress,
			"reason", p.ExitReason,
			"entry_price", p.EntryPrice,
			"exit_price", p.ExitPrice,
			"pnl", p.RealizedPnL,
			"tx", p.ExitTxRef,
		)
		return
	}

	p.LastError = errString(res.Err)
	if res.Kind == domain.KindRetryable && p.AttemptCount < m.policy.MaxAttempts(domain.SideSell) {
		p.CurrentSlippageToleranceBps = m.escalate(p.CurrentSlippageToleranceBps)
		p.NextAttemptAt = now.Add(m.policy.Delay(p.AttemptCount))
		p.UpdatedAt = now
		return
	}

	p.FailureReason = "sell_fatal"
	if res.Kind == domain.KindRetryable {
		p.FailureReason = "sell_retries_exhausted"
	}
	// Tokens are still held: the slot stays occupied until an operator acts.
	p.ManualIntervention = true
	m.setState(p, domain.StateFailed, now)
}

// escalate widens the exit slippage by one step, never past the ceiling.
func (m *Machine) escalate(bps int) int {
	next := bps + m.cfg.ExitSlippageStepBps
	if next > m.cfg.ExitSlippageCeilingBps {
		next = m.cfg.ExitSlippageCeilingBps
	}
	return next
}

// Due returns the retry intents whose scheduled time has come.
func (m *Machine) Due(now time.Time) []domain.ExecutionIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ExecutionIntent
	for _, p := range m.sortedLocked() {
		if p.InFlight || p.NextAttemptAt.IsZero() || now.Before(p.NextAttemptAt) {
			continue
		}
		if p.State != domain.StateEntering && p.State != domain.StateExiting {
			continue
		}
		p.AttemptCount++
		p.NextAttemptAt = time.Time{}
		out = append(out, m.intentFor(p))
	}
	return out
}

// Requeue undoes the bookkeeping of an intent the coordinator refused
// (token busy). It is retried on the next tick at the same attempt number.
func (m *Machine) Requeue(intent domain.ExecutionIntent, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[intent.PositionID]
	if !ok || p.AttemptCount != intent.AttemptNumber {
		return
	}
	p.InFlight = false
	p.AttemptCount--
	p.NextAttemptAt = now
}

// TakeReleased returns the slots freed since the previous call and resets the count.
func (m *Machine) TakeReleased() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.released
	m.released = 0
	return n
}

// Holds reports whether token currently belongs to a position.
func (m *Machine) Holds(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byToken[token]
	return ok
}

// Positions returns copies of all non-archived positions, oldest first.
func (m *Machine) Positions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.sortedLocked()
	out := make([]domain.Position, len(ps))
	for i, p := range ps {
		out[i] = *p
	}
	return out
}

// Archived returns copies of the Closed positions in closing order.
func (m *Machine) Archived() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, len(m.archived))
	copy(out, m.archived)
	return out
}

// OpenCount counts positions in Entering, Open or Exiting.
func (m *Machine) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.positions {
		if !p.State.IsTerminal() {
			n++
		}
	}
	return n
}

func (m *Machine) sortedLocked() []*domain.Position {
	ps := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
	return ps
}

func (m *Machine) setState(p *domain.Position, to domain.PositionState, now time.Time) {
	if !domain.CanTransition(p.State, to) {
		// Guarded by callers; reaching this is a programming error.
		panic(fmt.Sprintf("position: illegal transition %s → %s for %s", p.State, to, p.ID))
	}
	slog.Debug("position: transition", "position", p.ID, "token", p.TokenAddress, "from", p.State, "to", to)
	p.State = to
	p.UpdatedAt = now
}

// intentFor builds the intent for the position's current attempt and marks it in flight.
func (m *Machine) intentFor(p *domain.Position) domain.ExecutionIntent {
	intent := domain.ExecutionIntent{
		ID:             uuid.NewString(),
		PositionID:     p.ID,
		TokenAddress:   p.TokenAddress,
		MaxSlippageBps: p.CurrentSlippageToleranceBps,
		AttemptNumber:  p.AttemptCount,
	}
	if p.State == domain.StateEntering {
		intent.Side = domain.SideBuy
		intent.Amount = p.SizeInBaseCurrency
		intent.AmountDecimals = m.cfg.BaseDecimals
	} else {
		intent.Side = domain.SideSell
		intent.Amount = p.TokenAmount
		intent.AmountDecimals = p.TokenDecimals
		intent.ReferencePrice = p.LastPrice
	}
	p.InFlight = true
	return intent
}

func (m *Machine) record(p *domain.Position, from domain.PositionState, reason string) *domain.StatusRecord {
	return &domain.StatusRecord{
		PositionID:         p.ID,
		TokenAddress:       p.TokenAddress,
		FromState:          from,
		State:              p.State,
		Reason:             reason,
		Error:              p.LastError,
		ManualIntervention: p.ManualIntervention,
		RecordedAt:         p.UpdatedAt,
	}
}

func (m *Machine) archive(p *domain.Position) {
	delete(m.positions, p.ID)
	delete(m.byToken, p.TokenAddress)
	m.archived = append(m.archived, *p)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
