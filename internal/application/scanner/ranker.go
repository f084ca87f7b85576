package scanner

import (
	"sort"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Rank devuelve como mucho n candidatos que pasaron los filtros, ordenados por
// score descendente; empates por mayor liquidez y luego por dirección de token
// lexicográficamente menor. n <= 0 no devuelve ninguno.
func Rank(cands []domain.CandidateScore, n int) []domain.CandidateScore {
	if n <= 0 {
		return nil
	}
	passing := make([]domain.CandidateScore, 0, len(cands))
	for _, c := range cands {
		if c.PassedFilters {
			passing = append(passing, c)
		}
	}
	sortCandidates(passing)
	if len(passing) > n {
		passing = passing[:n]
	}
	return passing
}

// sortCandidates aplica el orden total de Rank in place.
func sortCandidates(cands []domain.CandidateScore) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LiquidityUSD != b.LiquidityUSD {
			return a.LiquidityUSD > b.LiquidityUSD
		}
		return a.TokenAddress < b.TokenAddress
	})
}

// orderForDisplay pone primero los que pasan y luego el resto, cada grupo en orden de Rank.
func orderForDisplay(cands []domain.CandidateScore) []domain.CandidateScore {
	out := make([]domain.CandidateScore, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PassedFilters && !out[j].PassedFilters
	})
	passing := 0
	for passing < len(out) && out[passing].PassedFilters {
		passing++
	}
	sortCandidates(out[:passing])
	sortCandidates(out[passing:])
	return out
}
