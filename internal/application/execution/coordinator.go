package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/domain"
	"github.com/alejandrodnm/dexscalper/internal/ports"
)

// blockhashValidity is how long a broadcast transaction can still land. A
// signature the node has never seen is only treated as dropped after this.
const blockhashValidity = 90 * time.Second

// broadcastTx remembers the last transaction sent for a token/side so that a
// retry can check whether it landed before submitting again.
type broadcastTx struct {
	txRef  string
	quote  domain.Quote
	sentAt time.Time
}

type txKey struct {
	token string
	side  domain.Side
}

// Coordinator turns execution intents into confirmed swaps.
//
// At most one intent per token is unresolved at any time: the token's slot is
// taken by Dispatch and only freed when Drain hands the result back to the
// caller. Locks are never held across provider round trips.
type Coordinator struct {
	swap     ports.SwapProvider
	signer   ports.Signer
	balances ports.TokenBalanceProvider // optional
	policy   RetryPolicy
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	inflight  map[string]string // token → intent ID
	broadcast map[txKey]broadcastTx
	resolved  []domain.ExecutionResult
	ready     chan struct{}
	wg        sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(swap ports.SwapProvider, signer ports.Signer, cfg Config) *Coordinator {
	policy := NewRetryPolicy(cfg)
	return &Coordinator{
		swap:      swap,
		signer:    signer,
		policy:    policy,
		cfg:       policy.cfg,
		now:       time.Now,
		inflight:  make(map[string]string),
		broadcast: make(map[txKey]broadcastTx),
		ready:     make(chan struct{}, 1),
	}
}

// SetTokenBalances makes every sell attempt size itself from the wallet's
// on-chain token balance instead of the amount recorded at entry.
func (c *Coordinator) SetTokenBalances(b ports.TokenBalanceProvider) {
	c.balances = b
}

// Policy returns the retry policy the state machine uses to schedule attempts.
func (c *Coordinator) Policy() RetryPolicy {
	return c.policy
}

// Submit performs exactly one attempt for intent and classifies the outcome.
// It never returns an error: failures are carried in the result's Kind and Err.
func (c *Coordinator) Submit(ctx context.Context, intent domain.ExecutionIntent) domain.ExecutionResult {
	key := txKey{token: intent.TokenAddress, side: intent.Side}
	refPrice := intent.ReferencePrice

	if intent.AttemptNumber <= 1 {
		c.forgetBroadcast(key)
	} else if prev, ok := c.lastBroadcast(key); ok {
		res, done := c.checkPrevious(ctx, intent, key, prev)
		if done {
			return res
		}
		if prev.quote.ExpectedPrice > 0 {
			refPrice = prev.quote.ExpectedPrice
		}
	}

	req := domain.QuoteRequest{
		TokenAddress:   intent.TokenAddress,
		Side:           intent.Side,
		Amount:         intent.Amount,
		AmountDecimals: intent.AmountDecimals,
		MaxSlippageBps: intent.MaxSlippageBps,
	}
	if intent.Side == domain.SideSell && c.balances != nil {
		held, decimals, err := c.balances.TokenBalance(ctx, intent.TokenAddress)
		if err != nil {
			return c.failure(intent, fmt.Errorf("execution.Submit: token balance: %w", err))
		}
		if held <= 0 {
			if intent.AttemptNumber > 1 {
				return c.soldOut(intent, refPrice)
			}
			return c.failure(intent, fmt.Errorf("execution.Submit: no %s balance to sell: %w", intent.TokenAddress, domain.ErrQuote))
		}
		req.Amount, req.AmountDecimals = held, decimals
	}

	q, err := c.swap.Quote(ctx, req)
	if err != nil {
		return c.failure(intent, fmt.Errorf("execution.Submit: quote: %w", err))
	}

	signed, err := c.signer.Sign(ctx, q.Transaction)
	if err != nil {
		return c.failure(intent, fmt.Errorf("execution.Submit: sign: %w", err))
	}

	// The signature is the tx reference: remember it before the send so a
	// failed or cut-off broadcast is still checked on the next attempt.
	sent := broadcastTx{txRef: signed.Signature, quote: q, sentAt: c.now()}
	c.rememberBroadcast(key, sent)

	tx, err := c.swap.Execute(ctx, q, signed)
	if tx.TxRef != "" && tx.TxRef != sent.txRef {
		sent.txRef = tx.TxRef
		c.rememberBroadcast(key, sent)
	}
	if err != nil {
		if errors.Is(err, domain.ErrExecutionRejected) {
			c.forgetBroadcast(key)
		}
		res := c.failure(intent, fmt.Errorf("execution.Submit: execute: %w", err))
		res.TxRef = sent.txRef
		res.Unresolved = mayHaveLanded(err)
		return res
	}
	if !tx.Confirmed {
		res := c.failure(intent, fmt.Errorf("execution.Submit: tx %s not confirmed: %w", sent.txRef, domain.ErrExecutionTimeout))
		res.TxRef = sent.txRef
		res.Unresolved = true
		return res
	}

	c.forgetBroadcast(key)
	return c.success(intent, q, sent.txRef)
}

// checkPrevious queries the status of the last broadcast tx for key.
// done=true means the attempt is resolved without submitting anything new.
func (c *Coordinator) checkPrevious(ctx context.Context, intent domain.ExecutionIntent, key txKey, prev broadcastTx) (domain.ExecutionResult, bool) {
	st, err := c.swap.TxStatus(ctx, prev.txRef)
	if err != nil {
		// Unknown status: resubmitting could spend twice.
		res := c.failure(intent, fmt.Errorf("execution.Submit: status of %s: %w", prev.txRef, err))
		res.Kind = domain.KindRetryable
		res.TxRef = prev.txRef
		res.Unresolved = true
		return res, true
	}

	switch st.State {
	case domain.TxConfirmed:
		slog.Info("execution: previous attempt already confirmed",
			"token", intent.TokenAddress,
			"side", intent.Side,
			"tx", prev.txRef,
		)
		c.forgetBroadcast(key)
		return c.success(intent, prev.quote, prev.txRef), true
	case domain.TxPending:
		res := c.failure(intent, fmt.Errorf("execution.Submit: tx %s still pending: %w", prev.txRef, domain.ErrExecutionTimeout))
		res.TxRef = prev.txRef
		res.Unresolved = true
		return res, true
	case domain.TxUnknown:
		if age := c.now().Sub(prev.sentAt); age < blockhashValidity {
			res := c.failure(intent, fmt.Errorf("execution.Submit: tx %s not seen yet (%s old): %w", prev.txRef, age.Round(time.Second), domain.ErrExecutionTimeout))
			res.TxRef = prev.txRef
			res.Unresolved = true
			return res, true
		}
	}

	// Failed on-chain or expired without landing: safe to submit again.
	slog.Debug("execution: previous attempt did not land",
		"token", intent.TokenAddress,
		"tx", prev.txRef,
		"state", st.State,
		"err", st.Err,
	)
	c.forgetBroadcast(key)
	return domain.ExecutionResult{}, false
}

// soldOut resolves a sell retry whose tokens already left the wallet: an
// earlier attempt filled even though it was never confirmed here.
func (c *Coordinator) soldOut(intent domain.ExecutionIntent, price float64) domain.ExecutionResult {
	slog.Info("execution: token balance gone, counting sell as filled",
		"token", intent.TokenAddress,
		"attempt", intent.AttemptNumber,
		"price", price,
	)
	c.forgetBroadcast(txKey{token: intent.TokenAddress, side: intent.Side})
	return domain.ExecutionResult{
		Intent:        intent,
		Kind:          domain.KindSuccess,
		ExecutedPrice: price,
		ResolvedAt:    c.now().UTC(),
	}
}

func (c *Coordinator) success(intent domain.ExecutionIntent, q domain.Quote, txRef string) domain.ExecutionResult {
	return domain.ExecutionResult{
		Intent:        intent,
		Kind:          domain.KindSuccess,
		ExecutedPrice: q.ExpectedPrice,
		TxRef:         txRef,
		OutAmount:     q.OutAmount,
		OutDecimals:   q.OutDecimals,
		ResolvedAt:    c.now().UTC(),
	}
}

func (c *Coordinator) failure(intent domain.ExecutionIntent, err error) domain.ExecutionResult {
	return domain.ExecutionResult{
		Intent:     intent,
		Kind:       domain.Classify(err),
		Err:        err,
		ResolvedAt: c.now().UTC(),
	}
}

// Dispatch runs one attempt for intent on its own goroutine. The attempt is
// detached from ctx cancellation and bounded by the per-attempt timeout.
// Returns domain.ErrIntentInFlight if the token already has an unresolved intent.
func (c *Coordinator) Dispatch(ctx context.Context, intent domain.ExecutionIntent) error {
	c.mu.Lock()
	if id, busy := c.inflight[intent.TokenAddress]; busy {
		c.mu.Unlock()
		return fmt.Errorf("execution.Dispatch: token %s (intent %s): %w", intent.TokenAddress, id, domain.ErrIntentInFlight)
	}
	c.inflight[intent.TokenAddress] = intent.ID
	c.wg.Add(1)
	c.mu.Unlock()

	slog.Info("execution: dispatching intent",
		"token", intent.TokenAddress,
		"side", intent.Side,
		"attempt", intent.AttemptNumber,
		"slippage_bps", intent.MaxSlippageBps,
	)

	go func() {
		defer c.wg.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AttemptTimeout)
		defer cancel()

		res := c.Submit(actx, intent)
		logResult(res)

		c.mu.Lock()
		c.resolved = append(c.resolved, res)
		c.mu.Unlock()

		select {
		case c.ready <- struct{}{}:
		default:
		}
	}()
	return nil
}

// Drain returns the results resolved since the last call and frees their tokens.
func (c *Coordinator) Drain() []domain.ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.resolved
	c.resolved = nil
	for _, r := range out {
		delete(c.inflight, r.Intent.TokenAddress)
	}
	return out
}

// Ready is signalled (non-blocking, coalesced) whenever a result is resolved.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// InFlight reports whether token has an unresolved or undrained intent.
func (c *Coordinator) InFlight(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[token]
	return ok
}

// Wait blocks until every dispatched attempt has resolved.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) lastBroadcast(key txKey) (broadcastTx, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.broadcast[key]
	return b, ok
}

func (c *Coordinator) rememberBroadcast(key txKey, b broadcastTx) {
	c.mu.Lock()
	c.broadcast[key] = b
	c.mu.Unlock()
}

func (c *Coordinator) forgetBroadcast(key txKey) {
	c.mu.Lock()
	delete(c.broadcast, key)
	c.mu.Unlock()
}

// mayHaveLanded reports whether a failed send leaves the transaction's fate open.
func mayHaveLanded(err error) bool {
	return errors.Is(err, domain.ErrNetwork) ||
		errors.Is(err, domain.ErrExecutionTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func logResult(res domain.ExecutionResult) {
	attrs := []any{
		"token", res.Intent.TokenAddress,
		"side", res.Intent.Side,
		"attempt", res.Intent.AttemptNumber,
		"kind", res.Kind,
	}
	switch {
	case res.Succeeded():
		slog.Info("execution: swap confirmed", append(attrs, "price", res.ExecutedPrice, "tx", res.TxRef)...)
	case errors.Is(res.Err, domain.ErrSignerUnrecoverable):
		slog.Error("execution: signer unrecoverable", append(attrs, "err", res.Err)...)
	default:
		slog.Warn("execution: attempt failed", append(attrs, "tx", res.TxRef, "err", res.Err)...)
	}
}
