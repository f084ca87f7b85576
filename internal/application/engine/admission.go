package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/alejandrodnm/dexscalper/internal/application/scanner"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// admit is the single admission decision point. It folds in the slots freed
// since the previous cycle, ranks the eligible candidates into the remaining
// capacity and opens a position for each. Returns how many were admitted.
func (e *Engine) admit(ctx context.Context, cands []domain.CandidateScore) int {
	e.mu.Lock()
	if released := e.machine.TakeReleased(); released > 0 {
		e.openSlots += released
		if e.openSlots > e.cfg.MaxConcurrent {
			e.openSlots = e.cfg.MaxConcurrent
		}
	}
	slots := e.openSlots
	e.mu.Unlock()

	if slots <= 0 {
		return 0
	}

	now := e.now()
	if now.Before(e.cooldownUntil) {
		slog.Debug("engine: buy cooldown active", "until", e.cooldownUntil)
		return 0
	}

	slots = e.affordable(ctx, slots)
	if slots <= 0 {
		return 0
	}
	ranked := scanner.Rank(e.eligible(cands), len(cands))

	admitted := 0
	for _, c := range ranked {
		if admitted >= slots {
			break
		}
		if !e.confirmed(ctx, c) {
			continue
		}
		tr, err := e.machine.Open(c.TokenAddress)
		if err != nil {
			slog.Warn("engine: could not open position", "token", c.TokenAddress, "err", err)
			continue
		}
		e.mu.Lock()
		e.openSlots--
		e.mu.Unlock()
		admitted++
		e.traded[c.TokenAddress] = true

		slog.Info("engine: position admitted",
			"position", tr.Position.ID,
			"token", c.TokenAddress,
			"name", c.Snapshot.Name,
			"score", c.Score,
			"size", tr.Position.SizeInBaseCurrency,
		)
		e.dispatch(ctx, *tr.Intent)
	}
	return admitted
}

// confirmed applies the last pre-entry check: the pair's 5-minute buy/sell
// ratio and volume must both clear their thresholds. Without a confirmer
// every candidate passes; a failed lookup rejects the candidate.
func (e *Engine) confirmed(ctx context.Context, c domain.CandidateScore) bool {
	if e.confirm == nil {
		return true
	}
	act, err := e.confirm.PairActivity(ctx, c.TokenAddress)
	if err != nil {
		slog.Warn("engine: pair confirmation failed, skipping", "token", c.TokenAddress, "err", err)
		return false
	}
	ratio := act.BuySellRatio5m()
	if ratio < e.cfg.ConfirmMinBuySellRatio || act.Volume5mUSD < e.cfg.ConfirmMinVolume5mUSD {
		slog.Info("engine: skipping, pair activity too weak",
			"token", c.TokenAddress,
			"buy_sell_m5", ratio,
			"volume_m5", act.Volume5mUSD,
		)
		return false
	}
	return true
}

// eligible drops candidates already held, already traded (when blacklisting)
// or waiting on an unresolved intent.
func (e *Engine) eligible(cands []domain.CandidateScore) []domain.CandidateScore {
	out := make([]domain.CandidateScore, 0, len(cands))
	for _, c := range cands {
		if !c.PassedFilters {
			continue
		}
		if e.machine.Holds(c.TokenAddress) {
			continue
		}
		if e.cfg.BlacklistTraded && e.traded[c.TokenAddress] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// affordable caps slots to what the wallet balance can pay for. Without a
// balance provider every slot is affordable; if the balance cannot be read
// nothing is admitted this cycle.
func (e *Engine) affordable(ctx context.Context, slots int) int {
	if e.balance == nil || e.cfg.SizeBase <= 0 {
		return slots
	}
	bal, err := e.balance.BaseBalance(ctx)
	if err != nil {
		slog.Warn("engine: balance check failed, not admitting", "err", err)
		return 0
	}
	n := int(math.Floor((bal - e.cfg.MinBaseBalance) / e.cfg.SizeBase))
	if n < slots {
		if n <= 0 {
			slog.Warn("engine: insufficient balance", "balance", bal, "size", e.cfg.SizeBase)
			return 0
		}
		return n
	}
	return slots
}

// dispatch hands an intent to the coordinator. A busy token is requeued for the next tick.
func (e *Engine) dispatch(ctx context.Context, intent domain.ExecutionIntent) {
	err := e.exec.Dispatch(ctx, intent)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrIntentInFlight) {
		slog.Debug("engine: token busy, requeueing", "token", intent.TokenAddress, "attempt", intent.AttemptNumber)
	} else {
		slog.Warn("engine: dispatch failed", "token", intent.TokenAddress, "err", err)
	}
	e.machine.Requeue(intent, e.now())
}
