package ports

import (
	"context"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// SwapProvider quotes, broadcasts and tracks swaps on the venue.
type SwapProvider interface {
	// Quote returns an executable, unsigned swap transaction within MaxSlippageBps.
	// Failures wrap domain.ErrQuote or domain.ErrNetwork.
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)

	// Execute broadcasts the signed transaction and waits for confirmation
	// until ctx expires. TxRef is populated as soon as the broadcast succeeds,
	// even if confirmation then times out (domain.ErrExecutionTimeout).
	Execute(ctx context.Context, q domain.Quote, tx domain.SignedTransaction) (domain.TxResult, error)

	// TxStatus reports the confirmation state of a previously broadcast tx.
	// Used before every retry to avoid submitting an intent twice.
	TxStatus(ctx context.Context, txRef string) (domain.TxStatus, error)
}

// Signer signs wire transactions with the trading wallet.
type Signer interface {
	// Sign returns the signed transaction. Errors wrap domain.ErrSigning, or
	// domain.ErrSignerUnrecoverable when no further signing is possible.
	Sign(ctx context.Context, tx []byte) (domain.SignedTransaction, error)

	// Address returns the wallet's public address.
	Address() string
}

// BalanceProvider returns the wallet's base-currency balance (UI units).
type BalanceProvider interface {
	BaseBalance(ctx context.Context) (float64, error)
}

// TokenBalanceProvider reads how much of a token the wallet actually holds.
type TokenBalanceProvider interface {
	// TokenBalance returns the balance in UI units and the mint's decimals.
	// A wallet without a token account for mint reports 0.
	TokenBalance(ctx context.Context, mint string) (float64, int, error)
}
