package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/database"
	"github.com/N-O-S-T/FactoryTestApp/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_Session(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 5, 7, 8, 9, 0, time.UTC)

	info := Info{ID: "s-1", StationID: "station-1", Operator: "alice", Batch: "B42", StartedAt: started}
	if err := repo.SaveSession(ctx, info); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	info.BatchInfo = "rev C boards"
	if err := repo.SaveSession(ctx, info); err != nil {
		t.Fatalf("SaveSession() update error = %v", err)
	}

	got, err := repo.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Operator != "alice" || got.BatchInfo != "rev C boards" || !got.StartedAt.Equal(started) {
		t.Errorf("GetSession() = %+v", got)
	}

	if _, err := repo.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_Results(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	if err := repo.SaveSession(ctx, Info{ID: "s-1", StationID: "station-1", StartedAt: at}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	results := []Result{
		{
			SessionID: "s-1", RunID: "r-1", Slot: dut.Slot{Board: 1, Number: 1},
			ChipID: "000B57FF00010001", State: dut.StateProgrammedOK,
			Voltage: true, DALI: true, RTC: true, Radio: true, Accel: true,
			Errors: []string{}, FinishedAt: at,
		},
		{
			SessionID: "s-1", RunID: "r-1", Slot: dut.Slot{Board: 1, Number: 2},
			State: dut.StateFailed, Voltage: true,
			Errors: []string{"DALI: error:1", "71999"}, FinishedAt: at,
		},
	}
	if err := repo.SaveResults(ctx, results); err != nil {
		t.Fatalf("SaveResults() error = %v", err)
	}
	if err := repo.SaveResults(ctx, nil); err != nil {
		t.Fatalf("SaveResults(nil) error = %v", err)
	}

	all, err := repo.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListResults() returned %d rows, want 2", len(all))
	}

	newest := all[0]
	if newest.Slot != (dut.Slot{Board: 1, Number: 2}) {
		t.Errorf("newest slot = %v, want 1.2", newest.Slot)
	}
	if newest.State != dut.StateFailed || newest.DALI || !newest.Voltage {
		t.Errorf("newest = %+v", newest)
	}
	if len(newest.Errors) != 2 || newest.Errors[0] != "DALI: error:1" {
		t.Errorf("newest.Errors = %v", newest.Errors)
	}
	if !newest.FinishedAt.Equal(at) {
		t.Errorf("FinishedAt = %v, want %v", newest.FinishedAt, at)
	}

	oldest := all[1]
	if oldest.State != dut.StateProgrammedOK || !oldest.Accel || oldest.ChipID != "000B57FF00010001" {
		t.Errorf("oldest = %+v", oldest)
	}

	limited, err := repo.ListResults(ctx, 1)
	if err != nil {
		t.Fatalf("ListResults(1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newest.ID {
		t.Errorf("ListResults(1) = %+v", limited)
	}
}

func TestSQLiteRepository_ResultsRequireSession(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SaveResults(context.Background(), []Result{{
		SessionID: "unknown", RunID: "r", Slot: dut.Slot{Board: 1, Number: 1},
		State: dut.StateFailed, FinishedAt: time.Now(),
	}})
	if err == nil {
		t.Fatal("SaveResults() with unknown session should fail the foreign key")
	}

	rows, err := repo.ListResults(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("ListResults() = %d rows after rollback, want 0", len(rows))
	}
}

func TestInfoValidate(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		info    Info
		wantErr bool
	}{
		{"empty", Info{}, false},
		{"typical", Info{Operator: "alice", Batch: "B42", BatchInfo: "line 1\nline 2"}, false},
		{"operator too long", Info{Operator: string(long)}, true},
		{"batch too long", Info{Batch: string(long)}, true},
		{"multi-line operator", Info{Operator: "a\nb"}, true},
		{"carriage return in batch", Info{Batch: "a\rb"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSession) {
				t.Errorf("Validate() error = %v, want ErrInvalidSession", err)
			}
		})
	}
}
