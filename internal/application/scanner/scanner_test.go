package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// --- mocks ---

type mockFetcher struct {
	snaps []domain.PoolSnapshot
	err   error
	calls int
}

func (m *mockFetcher) FetchTrendingPools(_ context.Context) ([]domain.PoolSnapshot, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.PoolSnapshot, len(m.snaps))
	copy(out, m.snaps)
	return out, nil
}

type mockMarketCap struct {
	mu    sync.Mutex
	caps  map[string]float64
	asked []string
}

func (m *mockMarketCap) MarketCap(_ context.Context, token string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, token)
	mc, ok := m.caps[token]
	if !ok {
		return 0, fmt.Errorf("mock: %w", domain.ErrNetwork)
	}
	return mc, nil
}

// --- tests ---

func TestScanner_ScanOnce_RanksPassingFirst(t *testing.T) {
	good := examplePool()
	better := examplePool()
	better.TokenAddress = "tokB"
	better.Volume24hUSD = 1_000_000
	bad := examplePool()
	bad.TokenAddress = "tokC"
	bad.MarketCapUSD = 41_000_000

	f := &mockFetcher{snaps: []domain.PoolSnapshot{bad, good, better}}
	s := New(DefaultConfig(), f, nil)

	cands, err := s.ScanOnce(context.Background())

	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, "tokB", cands[0].TokenAddress)
	assert.Equal(t, "tokA", cands[1].TokenAddress)
	assert.Equal(t, "tokC", cands[2].TokenAddress)
	assert.False(t, cands[2].PassedFilters)
}

func TestScanner_ScanOnce_FetchErrorWrapped(t *testing.T) {
	f := &mockFetcher{err: fmt.Errorf("gecko: %w", domain.ErrNetwork)}
	s := New(DefaultConfig(), f, nil)

	_, err := s.ScanOnce(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestScanner_Fetch_EnrichesMissingMarketCap(t *testing.T) {
	p1 := examplePool()
	p1.MarkMissing(domain.FieldMarketCap)
	p1.MarketCapUSD = 0
	p2 := examplePool()
	p2.TokenAddress = "tokB"
	p2.MarkMissing(domain.FieldMarketCap)
	p2.MarketCapUSD = 0
	p3 := examplePool()
	p3.TokenAddress = "tokC"

	mc := &mockMarketCap{caps: map[string]float64{"tokA": 3_000_000}}
	s := New(DefaultConfig(), &mockFetcher{snaps: []domain.PoolSnapshot{p1, p2, p3}}, mc)

	snaps, err := s.Fetch(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tokA", "tokB"}, mc.asked, "solo se piden los que faltan")
	assert.True(t, snaps[0].Has(domain.FieldMarketCap))
	assert.Equal(t, 3_000_000.0, snaps[0].MarketCapUSD)
	assert.False(t, snaps[1].Has(domain.FieldMarketCap), "fallo de enriquecimiento deja el campo ausente")
}

func TestScanner_Evaluate_PreservesOrder(t *testing.T) {
	var snaps []domain.PoolSnapshot
	for i := 0; i < 40; i++ {
		p := examplePool()
		p.TokenAddress = fmt.Sprintf("tok%02d", i)
		snaps = append(snaps, p)
	}
	cfg := DefaultConfig()
	cfg.ScoringWorkers = 7
	s := New(cfg, &mockFetcher{}, nil)

	cands := s.Evaluate(context.Background(), snaps)

	require.Len(t, cands, 40)
	for i, c := range cands {
		assert.Equal(t, snaps[i].TokenAddress, c.TokenAddress)
	}
}
