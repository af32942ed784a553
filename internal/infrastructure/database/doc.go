// Package database provides the SQLite connection behind the launch history.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Health checks
//
// Migrations are named YYYYMMDD_HHMMSS_<name>.up.sql with an optional
// matching .down.sql. The natsfixture schema is embedded by the top-level
// migrations package.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.History.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
