package ports

import (
	"context"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Notifier presenta candidatos y alertas al operador.
type Notifier interface {
	// NotifyCandidates muestra los candidatos de un ciclo, ya ordenados.
	NotifyCandidates(ctx context.Context, candidates []domain.CandidateScore) error

	// NotifyStatus muestra un registro de estado. Los Failed siempre se muestran.
	NotifyStatus(ctx context.Context, rec domain.StatusRecord) error
}
