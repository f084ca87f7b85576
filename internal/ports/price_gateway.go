package ports

import (
	"context"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// PriceGateway is polled once per monitoring tick per open position.
type PriceGateway interface {
	// GetPrice returns a fresh reading or an error wrapping domain.ErrStalePrice
	// (no usable value) or domain.ErrNetwork.
	GetPrice(ctx context.Context, tokenAddress string) (domain.PriceReading, error)
}
