package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/dexscalper/internal/domain"
	"github.com/alejandrodnm/dexscalper/internal/ports"
)

// Config contiene la configuración del scanner.
type Config struct {
	Filter         FilterConfig
	Weights        Weights
	Caps           Caps
	ScoringWorkers int // goroutines para puntuar (0 = NumCPU)
	EnrichWorkers  int // peticiones concurrentes de market cap (0 = 4)
}

// DefaultConfig devuelve la configuración por defecto del scanner.
func DefaultConfig() Config {
	return Config{
		Filter:  DefaultFilterConfig(),
		Weights: DefaultWeights(),
		Caps:    DefaultCaps(),
	}
}

// Scanner obtiene el feed de trending pools, lo enriquece y lo puntúa.
// No tiene estado entre ciclos: el orden de timestamps lo controla el engine.
type Scanner struct {
	cfg     Config
	fetcher ports.SnapshotFetcher
	mcap    ports.MarketCapProvider // opcional
	scorer  *Scorer
}

// New crea un Scanner. mcap puede ser nil.
func New(cfg Config, fetcher ports.SnapshotFetcher, mcap ports.MarketCapProvider) *Scanner {
	return &Scanner{
		cfg:     cfg,
		fetcher: fetcher,
		mcap:    mcap,
		scorer:  NewScorer(cfg.Filter, cfg.Weights, cfg.Caps),
	}
}

// Fetch trae el lote de snapshots y rellena el market cap que falte.
func (s *Scanner) Fetch(ctx context.Context) ([]domain.PoolSnapshot, error) {
	snaps, err := s.fetcher.FetchTrendingPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner.Fetch: fetch pools: %w", err)
	}
	s.enrichMarketCap(ctx, snaps)
	return snaps, nil
}

// Evaluate puntúa los snapshots en paralelo, en el orden recibido.
func (s *Scanner) Evaluate(ctx context.Context, snaps []domain.PoolSnapshot) []domain.CandidateScore {
	return scoreSnapshotsConcurrent(ctx, s.scorer, snaps, s.cfg.ScoringWorkers)
}

// ScanOnce hace fetch → enrich → score y devuelve todos los candidatos,
// primero los que pasan (en orden de ranking) y luego los descartados.
// Solo lectura: no abre posiciones ni persiste nada.
func (s *Scanner) ScanOnce(ctx context.Context) ([]domain.CandidateScore, error) {
	start := time.Now()
	snaps, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	cands := orderForDisplay(s.Evaluate(ctx, snaps))

	passed := 0
	for _, c := range cands {
		if c.PassedFilters {
			passed++
		}
	}
	slog.Info("scanner: scan complete",
		"pools", len(snaps),
		"passed", passed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return cands, nil
}

// enrichMarketCap pide el market cap a la fuente secundaria para los pools que
// no lo traen. Un fallo deja el campo ausente: el filtro lo descartará.
func (s *Scanner) enrichMarketCap(ctx context.Context, snaps []domain.PoolSnapshot) {
	if s.mcap == nil {
		return
	}
	limit := s.cfg.EnrichWorkers
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range snaps {
		if snaps[i].Has(domain.FieldMarketCap) {
			continue
		}
		p := &snaps[i]
		g.Go(func() error {
			mc, err := s.mcap.MarketCap(gctx, p.TokenAddress)
			if err != nil {
				slog.Debug("scanner: market cap enrichment failed", "token", p.TokenAddress, "err", err)
				return nil
			}
			if mc > 0 {
				p.MarketCapUSD = mc
				p.ClearMissing(domain.FieldMarketCap)
			}
			return nil
		})
	}
	_ = g.Wait()
}
