package ports

import (
	"context"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// SnapshotFetcher obtiene el lote de pools trending del venue.
type SnapshotFetcher interface {
	// FetchTrendingPools devuelve un snapshot por pool. Los errores de transporte
	// envuelven domain.ErrNetwork: el ciclo se salta, el loop sigue.
	FetchTrendingPools(ctx context.Context) ([]domain.PoolSnapshot, error)
}

// MarketCapProvider rellena el market cap de un token cuando el feed no lo trae.
type MarketCapProvider interface {
	MarketCap(ctx context.Context, tokenAddress string) (float64, error)
}

// PairConfirmer devuelve la actividad reciente (m5) del par principal de un token.
// El engine la usa como última confirmación antes de comprar.
type PairConfirmer interface {
	PairActivity(ctx context.Context, tokenAddress string) (domain.PairActivity, error)
}
