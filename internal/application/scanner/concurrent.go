package scanner

// concurrent.go — worker pool para puntuar el lote de snapshots en paralelo.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// scoreSnapshotsConcurrent puntúa todos los snapshots usando un worker pool.
// El resultado conserva el orden de entrada, así el ciclo es determinista.
//
// Si workers <= 0 usa runtime.NumCPU().
func scoreSnapshotsConcurrent(
	ctx context.Context,
	scorer *Scorer,
	snaps []domain.PoolSnapshot,
	workers int,
) []domain.CandidateScore {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(snaps) {
		workers = len(snaps)
	}

	out := make([]domain.CandidateScore, len(snaps))
	workCh := make(chan int, len(snaps))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				out[idx] = scorer.Score(snaps[idx])
			}
		}()
	}

	queued := 0
	for i := range snaps {
		if ctx.Err() != nil {
			break
		}
		workCh <- i
		queued++
	}
	close(workCh)
	wg.Wait()

	slog.Debug("scanner: concurrent scoring complete",
		"snapshots", len(snaps),
		"queued", queued,
		"workers", workers,
	)
	return out[:queued]
}
