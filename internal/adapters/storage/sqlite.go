package storage

// sqlite.go — ledger append-only de posiciones cerradas.
//
//   - `closed_positions`: una fila por posición cerrada, nunca se actualiza ni
//     se borra. `seq` da el orden de inserción; `position_id` es UNIQUE para que
//     un doble cierre no duplique el PnL.
//   - `position_status`: registros de estado (Failed, intervención manual).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrDuplicateKey: la posición ya está en el ledger.
var ErrDuplicateKey = errors.New("storage: duplicate key")

const schema = `
CREATE TABLE IF NOT EXISTS closed_positions (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    position_id   TEXT    NOT NULL UNIQUE,
    token_address TEXT    NOT NULL,
    entry_price   REAL    NOT NULL,
    exit_price    REAL    NOT NULL,
    size_base     REAL    NOT NULL,
    realized_pnl  REAL    NOT NULL,
    entry_time    TEXT    NOT NULL,
    exit_time     TEXT    NOT NULL,
    exit_reason   TEXT    NOT NULL,
    entry_tx      TEXT    NOT NULL DEFAULT '',
    exit_tx       TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS position_status (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    position_id   TEXT    NOT NULL,
    token_address TEXT    NOT NULL,
    from_state    TEXT    NOT NULL,
    state         TEXT    NOT NULL,
    reason        TEXT    NOT NULL DEFAULT '',
    error         TEXT    NOT NULL DEFAULT '',
    manual        INTEGER NOT NULL DEFAULT 0,
    recorded_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_token ON closed_positions(token_address);
CREATE INDEX IF NOT EXISTS idx_status_pos   ON position_status(position_id);
`

// Las fechas se guardan en UTC con nanosegundos de ancho fijo: así el texto
// ordena igual que el tiempo (RFC3339Nano recorta ceros y no lo cumple).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteLedger implementa ports.Ledger usando SQLite (pure Go, sin CGo).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// AppendClosed añade una posición cerrada al final del ledger.
func (s *SQLiteLedger) AppendClosed(ctx context.Context, c domain.ClosedPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_positions
			(position_id, token_address, entry_price, exit_price, size_base, realized_pnl,
			 entry_time, exit_time, exit_reason, entry_tx, exit_tx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.PositionID,
		c.TokenAddress,
		c.EntryPrice,
		c.ExitPrice,
		c.SizeInBaseCurrency,
		c.RealizedPnL,
		formatTime(c.EntryTimeUTC),
		formatTime(c.ExitTimeUTC),
		string(c.ExitReason),
		c.EntryTxRef,
		c.ExitTxRef,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage.AppendClosed: %s: %w", c.PositionID, ErrDuplicateKey)
		}
		return fmt.Errorf("storage.AppendClosed: insert %s: %w", c.PositionID, err)
	}
	return nil
}

// ListClosed devuelve el ledger completo en orden de inserción.
func (s *SQLiteLedger) ListClosed(ctx context.Context) ([]domain.ClosedPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, position_id, token_address, entry_price, exit_price, size_base,
		       realized_pnl, entry_time, exit_time, exit_reason, entry_tx, exit_tx
		FROM closed_positions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListClosed: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedPosition
	for rows.Next() {
		var c domain.ClosedPosition
		var entryTime, exitTime, reason string
		if err := rows.Scan(
			&c.Seq,
			&c.PositionID,
			&c.TokenAddress,
			&c.EntryPrice,
			&c.ExitPrice,
			&c.SizeInBaseCurrency,
			&c.RealizedPnL,
			&entryTime,
			&exitTime,
			&reason,
			&c.EntryTxRef,
			&c.ExitTxRef,
		); err != nil {
			return nil, fmt.Errorf("storage.ListClosed: scan row: %w", err)
		}
		if c.EntryTimeUTC, err = parseTime(entryTime); err != nil {
			return nil, fmt.Errorf("storage.ListClosed: %s entry_time: %w", c.PositionID, err)
		}
		if c.ExitTimeUTC, err = parseTime(exitTime); err != nil {
			return nil, fmt.Errorf("storage.ListClosed: %s exit_time: %w", c.PositionID, err)
		}
		c.ExitReason = domain.ExitReason(reason)
		out = append(out, c)
	}
	return out, rows.Err()
}

// TotalRealizedPnL suma el PnL realizado de todo el ledger.
func (s *SQLiteLedger) TotalRealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(realized_pnl), 0) FROM closed_positions`,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("storage.TotalRealizedPnL: %w", err)
	}
	return total, nil
}

// AppendStatus añade un registro de estado.
func (s *SQLiteLedger) AppendStatus(ctx context.Context, r domain.StatusRecord) error {
	manual := 0
	if r.ManualIntervention {
		manual = 1
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO position_status
			(position_id, token_address, from_state, state, reason, error, manual, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PositionID,
		r.TokenAddress,
		string(r.FromState),
		string(r.State),
		r.Reason,
		r.Error,
		manual,
		formatTime(r.RecordedAt),
	); err != nil {
		return fmt.Errorf("storage.AppendStatus: insert %s: %w", r.PositionID, err)
	}
	return nil
}

// ListStatus devuelve los registros de estado en orden de inserción.
func (s *SQLiteLedger) ListStatus(ctx context.Context) ([]domain.StatusRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, token_address, from_state, state, reason, error, manual, recorded_at
		FROM position_status
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListStatus: query: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusRecord
	for rows.Next() {
		var r domain.StatusRecord
		var from, state, recorded string
		var manual int
		if err := rows.Scan(
			&r.PositionID,
			&r.TokenAddress,
			&from,
			&state,
			&r.Reason,
			&r.Error,
			&manual,
			&recorded,
		); err != nil {
			return nil, fmt.Errorf("storage.ListStatus: scan row: %w", err)
		}
		r.FromState = domain.PositionState(from)
		r.State = domain.PositionState(state)
		r.ManualIntervention = manual == 1
		if r.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("storage.ListStatus: %s recorded_at: %w", r.PositionID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime acepta cualquier RFC3339, también filas escritas sin ancho fijo.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// isUniqueViolation detecta la violación de UNIQUE de SQLite por el mensaje,
// que es estable entre versiones del driver.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
