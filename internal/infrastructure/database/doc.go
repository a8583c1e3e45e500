// Package database provides SQLite connectivity for the station's result store.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned, additive schema migrations read from an fs.FS
//   - Health checks for the operator API
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
