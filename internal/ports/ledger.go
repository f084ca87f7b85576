package ports

import (
	"context"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Ledger is the append-only record of closed positions and failure records.
type Ledger interface {
	// AppendClosed appends one row per closed position. Appending the same
	// position twice returns an error wrapping storage.ErrDuplicateKey.
	AppendClosed(ctx context.Context, c domain.ClosedPosition) error

	// ListClosed returns every closed position in append order.
	ListClosed(ctx context.Context) ([]domain.ClosedPosition, error)

	// TotalRealizedPnL sums RealizedPnL over the ledger.
	TotalRealizedPnL(ctx context.Context) (float64, error)

	// AppendStatus records a structured status record (Failed positions and alerts).
	AppendStatus(ctx context.Context, r domain.StatusRecord) error

	// ListStatus returns status records in append order.
	ListStatus(ctx context.Context) ([]domain.StatusRecord, error)

	Close() error
}
