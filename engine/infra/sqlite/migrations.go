package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseInitMu sync.Mutex

// ApplyMigrations executes all embedded SQLite migrations against the database.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	gooseInitMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseInitMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

// Migrate opens the database described by cfg, applies migrations and closes it.
func Migrate(ctx context.Context, cfg *Config) error {
	store, err := NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(ctx)
	return ApplyMigrations(ctx, store.DB())
}
