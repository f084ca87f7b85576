package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/adapters/storage"
	"github.com/alejandrodnm/dexscalper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeClosed(id string, pnl float64) domain.ClosedPosition {
	return domain.ClosedPosition{
		PositionID:         id,
		TokenAddress:       "Mint" + id,
		EntryPrice:         100,
		ExitPrice:          115,
		SizeInBaseCurrency: 0.1,
		RealizedPnL:        pnl,
		EntryTimeUTC:       t0,
		ExitTimeUTC:        t0.Add(90 * time.Second),
		ExitReason:         domain.ExitProfitTarget,
		EntryTxRef:         "in-" + id,
		ExitTxRef:          "out-" + id,
	}
}

func newLedger(t *testing.T) *storage.SQLiteLedger {
	t.Helper()
	db, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteLedger_AppendAndList(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	require.NoError(t, db.AppendClosed(ctx, makeClosed("b", 0.015)))
	require.NoError(t, db.AppendClosed(ctx, makeClosed("a", -0.004)))

	rows, err := db.ListClosed(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Orden de inserción, no alfabético
	assert.Equal(t, "b", rows[0].PositionID)
	assert.Equal(t, "a", rows[1].PositionID)
	assert.Less(t, rows[0].Seq, rows[1].Seq)

	got := rows[0]
	assert.Equal(t, "Mintb", got.TokenAddress)
	assert.InDelta(t, 0.015, got.RealizedPnL, 1e-12)
	assert.True(t, t0.Equal(got.EntryTimeUTC))
	assert.True(t, t0.Add(90*time.Second).Equal(got.ExitTimeUTC))
	assert.Equal(t, domain.ExitProfitTarget, got.ExitReason)
	assert.Equal(t, "out-b", got.ExitTxRef)
}

func TestSQLiteLedger_DuplicateRejected(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	require.NoError(t, db.AppendClosed(ctx, makeClosed("a", 0.01)))
	err := db.AppendClosed(ctx, makeClosed("a", 0.01))

	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)
	total, err := db.TotalRealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, total, 1e-12)
}

func TestSQLiteLedger_TotalRealizedPnL(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	total, err := db.TotalRealizedPnL(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, db.AppendClosed(ctx, makeClosed("a", 0.015)))
	require.NoError(t, db.AppendClosed(ctx, makeClosed("b", -0.005)))

	total, err = db.TotalRealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, total, 1e-12)
}

func TestSQLiteLedger_Status(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	rec := domain.StatusRecord{
		PositionID:         "p1",
		TokenAddress:       "MintA",
		FromState:          domain.StateExiting,
		State:              domain.StateFailed,
		Reason:             "sell_retries_exhausted",
		Error:              "quote error",
		ManualIntervention: true,
		RecordedAt:         t0,
	}
	require.NoError(t, db.AppendStatus(ctx, rec))
	require.NoError(t, db.AppendStatus(ctx, domain.StatusRecord{PositionID: "p2", State: domain.StateFailed, RecordedAt: t0}))

	list, err := db.ListStatus(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rec.PositionID, list[0].PositionID)
	assert.Equal(t, domain.StateExiting, list[0].FromState)
	assert.Equal(t, domain.StateFailed, list[0].State)
	assert.True(t, list[0].ManualIntervention)
	assert.True(t, t0.Equal(list[0].RecordedAt))
	assert.Equal(t, "p2", list[1].PositionID)
	assert.False(t, list[1].ManualIntervention)
}

func TestSQLiteLedger_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := storage.NewSQLiteLedger(path)
	require.NoError(t, err)
	require.NoError(t, db.AppendClosed(ctx, makeClosed("a", 0.02)))
	require.NoError(t, db.Close())

	db, err = storage.NewSQLiteLedger(path)
	require.NoError(t, err)
	defer db.Close()

	total, err := db.TotalRealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, total, 1e-12)
}

func TestSQLiteLedger_CorruptTimeIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := storage.NewSQLiteLedger(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.AppendClosed(ctx, makeClosed("a", 0.02)))
	require.NoError(t, db.AppendStatus(ctx, domain.StatusRecord{
		PositionID: "a", TokenAddress: "MintA", FromState: domain.StateExiting, State: domain.StateClosed, RecordedAt: t0,
	}))

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE closed_positions SET exit_time = 'yesterday'`)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, `UPDATE position_status SET recorded_at = ''`)
	require.NoError(t, err)

	_, err = db.ListClosed(ctx)
	assert.ErrorContains(t, err, "exit_time")
	_, err = db.ListStatus(ctx)
	assert.ErrorContains(t, err, "recorded_at")
}

func TestSQLiteLedger_StoredTimesSortChronologically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := storage.NewSQLiteLedger(path)
	require.NoError(t, err)
	defer db.Close()

	// Sin ancho fijo "12:00:00.5Z" ordenaría detrás de "12:00:00.123Z".
	later := makeClosed("later", 0)
	later.ExitTimeUTC = t0.Add(500 * time.Millisecond)
	earlier := makeClosed("earlier", 0)
	earlier.ExitTimeUTC = t0.Add(123 * time.Millisecond)
	require.NoError(t, db.AppendClosed(ctx, later))
	require.NoError(t, db.AppendClosed(ctx, earlier))

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	rows, err := raw.QueryContext(ctx, `SELECT position_id FROM closed_positions ORDER BY exit_time ASC`)
	require.NoError(t, err)
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"earlier", "later"}, ids)

	got, err := db.ListClosed(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].ExitTimeUTC.Equal(later.ExitTimeUTC), "times round-trip exactly")
}
