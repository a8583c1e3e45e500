package database

import (
	"context"
	"testing"
	"testing/fstest"
)

var testMigrations = fstest.MapFS{
	"20260301_090000_boards.up.sql":   {Data: []byte("CREATE TABLE boards (id INTEGER PRIMARY KEY);")},
	"20260301_090000_boards.down.sql": {Data: []byte("DROP TABLE boards;")},
	"20260302_100000_slots.up.sql":    {Data: []byte("CREATE TABLE slots (board_id INTEGER REFERENCES boards(id));")},
	"README.md":                       {Data: []byte("not a migration")},
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"boards", "slots"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(applied) != 2 || !applied["20260301_090000"] || !applied["20260302_100000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	broken := fstest.MapFS{
		"20260301_090000_ok.up.sql":  {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"20260302_090000_bad.up.sql": {Data: []byte("CREATE TABLE broken (;")},
	}

	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() error = nil, want failure")
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if !applied["20260301_090000"] {
		t.Error("first migration should stay committed")
	}
	if applied["20260302_090000"] {
		t.Error("failed migration must not be recorded")
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Name != "boards" || migrations[0].DownSQL == "" {
		t.Errorf("migrations[0] = %+v", migrations[0])
	}
	if migrations[1].Version != "20260302_100000" || migrations[1].DownSQL != "" {
		t.Errorf("migrations[1] = %+v", migrations[1])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  string
		name     string
		up       bool
		ok       bool
	}{
		{"20260301_090000_dut_results.up.sql", "20260301_090000", "dut_results", true, true},
		{"20260301_090000_dut_results.down.sql", "20260301_090000", "dut_results", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"schema.sql", "", "", false, false},
		{"20260301.up.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.ok || version != tt.version || name != tt.name || up != tt.up {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v, %v), want (%q, %q, %v, %v)",
					tt.filename, version, name, up, ok, tt.version, tt.name, tt.up, tt.ok)
			}
		})
	}
}
