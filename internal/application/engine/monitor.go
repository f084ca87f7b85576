package engine

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/dexscalper/internal/application/position"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// monitorTick applies resolved results, pulls a price for every Open position
// concurrently, evaluates exits and dispatches due retries.
func (e *Engine) monitorTick(ctx context.Context) error {
	if err := e.handleResults(ctx); err != nil {
		return err
	}

	now := e.now()
	watch := e.machine.Watch()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PriceWorkers)
	for _, p := range watch {
		p := p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, e.cfg.PriceTimeout)
			defer cancel()
			reading, err := e.prices.GetPrice(pctx, p.TokenAddress)
			tr, exit := e.machine.Evaluate(p.ID, reading, err, now)
			if exit && tr.Intent != nil {
				e.dispatch(ctx, *tr.Intent)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, intent := range e.machine.Due(now) {
		e.dispatch(ctx, intent)
	}
	return nil
}

// handleResults drains the coordinator and applies each result to its
// position. Returns domain.ErrSignerUnrecoverable (wrapped) if any attempt
// reported it; the remaining results are still applied.
func (e *Engine) handleResults(ctx context.Context) error {
	var fatal error
	for _, res := range e.exec.Drain() {
		tr, err := e.machine.Apply(res)
		if err != nil {
			slog.Warn("engine: result not applied", "token", res.Intent.TokenAddress, "err", err)
		} else {
			e.record(ctx, tr)
		}
		if fatal == nil && errors.Is(res.Err, domain.ErrSignerUnrecoverable) {
			fatal = res.Err
		}
	}
	return fatal
}

// record performs the side effects of a transition: ledger rows, cooldown,
// operator alerts.
func (e *Engine) record(ctx context.Context, tr position.Transition) {
	if tr.Closed != nil {
		e.mu.Lock()
		e.sessionPnL += tr.Closed.RealizedPnL
		e.mu.Unlock()
		e.cooldownUntil = e.now().Add(e.cfg.BuyCooldown)
		if e.ledger != nil {
			if err := e.ledger.AppendClosed(ctx, *tr.Closed); err != nil {
				slog.Error("engine: ledger append failed", "position", tr.Closed.PositionID, "err", err)
			}
		}
	}

	if tr.Record == nil {
		return
	}
	rec := *tr.Record
	if rec.State == domain.StateFailed {
		slog.Error("engine: POSITION FAILED",
			"position", rec.PositionID,
			"token", rec.TokenAddress,
			"from", rec.FromState,
			"reason", rec.Reason,
			"manual_intervention", rec.ManualIntervention,
			"err", rec.Error,
		)
	}
	if e.ledger != nil {
		if err := e.ledger.AppendStatus(ctx, rec); err != nil {
			slog.Error("engine: status append failed", "position", rec.PositionID, "err", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyStatus(ctx, rec); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}
	}
}
