package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

// Repository defines the interface for session persistence operations.
type Repository interface {
	SaveSession(ctx context.Context, info Info) error
	GetSession(ctx context.Context, id string) (Info, error)
	SaveResults(ctx context.Context, results []Result) error
	ListResults(ctx context.Context, limit int) ([]Result, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed session repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveSession inserts or updates a session row.
func (r *SQLiteRepository) SaveSession(ctx context.Context, info Info) error {
	const query = `INSERT INTO sessions (id, station_id, operator, batch, batch_info, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			operator = excluded.operator,
			batch = excluded.batch,
			batch_info = excluded.batch_info`
	_, err := r.db.ExecContext(ctx, query,
		info.ID, info.StationID, info.Operator, info.Batch, info.BatchInfo,
		info.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving session %s: %w", info.ID, err)
	}
	return nil
}

// GetSession returns a session by ID.
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (Info, error) {
	const query = `SELECT id, station_id, operator, batch, batch_info, started_at
		FROM sessions WHERE id = ?`

	var info Info
	var started string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&info.ID, &info.StationID, &info.Operator, &info.Batch, &info.BatchInfo, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("querying session %s: %w", id, err)
	}
	info.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Info{}, fmt.Errorf("parsing started_at for session %s: %w", id, err)
	}
	return info, nil
}

// SaveResults inserts verdict rows in a single transaction.
func (r *SQLiteRepository) SaveResults(ctx context.Context, results []Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op

	const query = `INSERT INTO dut_results (session_id, run_id, board, slot, chip_id, state,
		voltage_checked, dali_checked, rtc_checked, radio_checked, accel_checked,
		errors, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		errs, err := json.Marshal(res.Errors)
		if err != nil {
			return fmt.Errorf("encoding errors for %s: %w", res.Slot, err)
		}
		_, err = stmt.ExecContext(ctx,
			res.SessionID, res.RunID, res.Slot.Board, res.Slot.Number, res.ChipID, res.State.String(),
			boolToInt(res.Voltage), boolToInt(res.DALI), boolToInt(res.RTC),
			boolToInt(res.Radio), boolToInt(res.Accel),
			string(errs), res.FinishedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("inserting result for %s: %w", res.Slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

// ListResults returns the most recent verdicts, newest first. A limit of
// zero or less returns all rows.
func (r *SQLiteRepository) ListResults(ctx context.Context, limit int) ([]Result, error) {
	query := `SELECT id, session_id, run_id, board, slot, chip_id, state,
		voltage_checked, dali_checked, rtc_checked, radio_checked, accel_checked,
		errors, finished_at
		FROM dut_results ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return out, nil
}

func scanResult(rows *sql.Rows) (Result, error) {
	var res Result
	var state, errs, finished string
	var voltage, dali, rtc, radio, accel int

	err := rows.Scan(&res.ID, &res.SessionID, &res.RunID, &res.Slot.Board, &res.Slot.Number,
		&res.ChipID, &state, &voltage, &dali, &rtc, &radio, &accel, &errs, &finished)
	if err != nil {
		return Result{}, fmt.Errorf("scanning result: %w", err)
	}

	res.State = parseState(state)
	res.Voltage, res.DALI, res.RTC = voltage != 0, dali != 0, rtc != 0
	res.Radio, res.Accel = radio != 0, accel != 0

	if err := json.Unmarshal([]byte(errs), &res.Errors); err != nil {
		return Result{}, fmt.Errorf("decoding errors of result %d: %w", res.ID, err)
	}
	res.FinishedAt, err = time.Parse(time.RFC3339Nano, finished)
	if err != nil {
		return Result{}, fmt.Errorf("parsing finished_at of result %d: %w", res.ID, err)
	}
	return res, nil
}

func parseState(s string) dut.State {
	for _, st := range []dut.State{dut.StateUnknown, dut.StateDetected, dut.StateProgrammedOK, dut.StateFailed} {
		if st.String() == s {
			return st
		}
	}
	return dut.StateUnknown
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
