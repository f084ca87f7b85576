package position

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Watch returns the Open positions that need a price this tick.
func (m *Machine) Watch() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.sortedLocked() {
		if p.State == domain.StateOpen {
			out = append(out, *p)
		}
	}
	return out
}

// Evaluate runs the exit rules for one Open position against a price pull.
// priceErr != nil means no fresh value this tick. When the last fresh price is
// older than the staleness timeout the position exits with stale_price,
// regardless of the profit and time rules. Otherwise profit-target is checked
// before max-hold.
func (m *Machine) Evaluate(positionID string, reading domain.PriceReading, priceErr error, now time.Time) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok || p.State != domain.StateOpen {
		return Transition{}, false
	}

	fresh := priceErr == nil && reading.Price > 0
	if fresh {
		p.LastPrice = reading.Price
		p.LastFreshPriceAt = reading.ObservedAt
		if p.LastFreshPriceAt.IsZero() {
			p.LastFreshPriceAt = now
		}
	} else {
		slog.Debug("position: no fresh price", "position", p.ID, "token", p.TokenAddress, "err", priceErr)
	}

	var reason domain.ExitReason
	switch {
	case p.IsStale(now, m.cfg.StalePriceTimeout):
		reason = domain.ExitStalePrice
	case fresh:
		reason, _ = p.EvaluateExit(p.LastPrice, now)
	case p.MaxHoldSeconds > 0 && p.Held(now) >= p.MaxHold():
		reason = domain.ExitMaxHold
	}
	if reason == domain.ExitNone {
		return Transition{}, false
	}
	return m.beginExit(p, reason, now), true
}

// beginExit moves p from Open to Exiting and builds the first sell intent.
func (m *Machine) beginExit(p *domain.Position, reason domain.ExitReason, now time.Time) Transition {
	from := p.State
	m.setState(p, domain.StateExiting, now)
	p.ExitReason = reason
	p.AttemptCount = 1
	p.CurrentSlippageToleranceBps = m.cfg.ExitSlippageBps
	p.NextAttemptAt = time.Time{}

	slog.Info("position: exit triggered",
		"position", p.ID,
		"token", p.TokenAddress,
		"reason", reason,
		"entry_price", p.EntryPrice,
		"last_price", p.LastPrice,
		"profit_pct", p.ProfitPctAt(p.LastPrice),
		"held", p.Held(now).Round(time.Second),
	)

	intent := m.intentFor(p)
	return Transition{Position: *p, From: from, Intent: &intent}
}
