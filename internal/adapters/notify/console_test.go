package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/adapters/notify"
	"github.com/alejandrodnm/dexscalper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandidate(token, name string, score float64, passed bool, reasons ...domain.FailureReason) domain.CandidateScore {
	return domain.CandidateScore{
		TokenAddress:   token,
		Score:          score,
		PassedFilters:  passed,
		FailureReasons: reasons,
		LiquidityUSD:   250_000,
		BuySellRatio:   1.5,
		Snapshot: domain.PoolSnapshot{
			TokenAddress:   token,
			Name:           name,
			MarketCapUSD:   2_500_000,
			LiquidityUSD:   250_000,
			Volume24hUSD:   1_200_000,
			PriceChangePct: 12.5,
			BuyCount:       300,
			SellCount:      200,
		},
	}
}

func TestConsole_NotifyCandidates(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	cands := []domain.CandidateScore{
		makeCandidate("MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1", "BONK / SOL", 0.6123, true),
		makeCandidate("MintB", "WIF / SOL", 0.1, false, domain.ReasonVolumeBelowFloor, domain.ReasonBuySellRatioLow),
	}

	require.NoError(t, n.NotifyCandidates(context.Background(), cands))

	out := buf.String()
	assert.Contains(t, out, "2 pools → 1 passed filters")
	assert.Contains(t, out, "BONK / SOL")
	assert.Contains(t, out, "Mint…AAA1")
	assert.Contains(t, out, "0.6123")
	assert.Contains(t, out, "$2.50M")
	assert.Contains(t, out, "+12.5")
	assert.Contains(t, out, "volume_below_floor")
}

func TestConsole_NotifyCandidates_MissingFieldsShowDash(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	c := makeCandidate("MintC", "X / SOL", 0, false, domain.MissingFieldReason(domain.FieldMarketCap))
	c.Snapshot.MarkMissing(domain.FieldMarketCap)

	require.NoError(t, n.NotifyCandidates(context.Background(), []domain.CandidateScore{c}))
	assert.Contains(t, buf.String(), "missing:market_cap_usd")
	assert.NotContains(t, buf.String(), "$2.50M")
}

func TestConsole_NotifyCandidates_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	require.NoError(t, n.NotifyCandidates(context.Background(), nil))
	assert.Contains(t, buf.String(), "no candidates found")
}

func TestConsole_NotifyStatus_ManualFlag(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	err := n.NotifyStatus(context.Background(), domain.StatusRecord{
		PositionID:         "pos-1",
		TokenAddress:       "MintA",
		FromState:          domain.StateExiting,
		State:              domain.StateFailed,
		Reason:             "sell_retries_exhausted",
		Error:              "quote error",
		ManualIntervention: true,
		RecordedAt:         time.Now(),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "!! MANUAL")
	assert.Contains(t, out, "EXITING→FAILED")
	assert.Contains(t, out, "reason=sell_retries_exhausted")
}

func TestConsole_PrintLedgerReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n.PrintLedgerReport(notify.LedgerReport{
		Closed: []domain.ClosedPosition{
			{Seq: 1, PositionID: "a", TokenAddress: "MintA", EntryPrice: 100, ExitPrice: 115,
				SizeInBaseCurrency: 0.1, RealizedPnL: 0.015, EntryTimeUTC: t0, ExitTimeUTC: t0.Add(95 * time.Second),
				ExitReason: domain.ExitProfitTarget},
			{Seq: 2, PositionID: "b", TokenAddress: "MintB", EntryPrice: 100, ExitPrice: 96,
				SizeInBaseCurrency: 0.1, RealizedPnL: -0.004, EntryTimeUTC: t0, ExitTimeUTC: t0.Add(20 * time.Minute),
				ExitReason: domain.ExitMaxHold},
		},
		Status: []domain.StatusRecord{{PositionID: "c", State: domain.StateFailed, ManualIntervention: true, RecordedAt: t0}},
		Total:  0.011,
	})

	out := buf.String()
	assert.Contains(t, out, "2 closed, 1 status records")
	assert.Contains(t, out, "+0.015000")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "max_hold")
	assert.Contains(t, out, "Win rate:      1/2")
	assert.Contains(t, out, "+0.011000")
	assert.Contains(t, out, "1 position(s) need manual intervention")
}

func TestConsole_PrintLedgerReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintLedgerReport(notify.LedgerReport{})
	assert.True(t, strings.Contains(buf.String(), "No closed positions yet"))
}
