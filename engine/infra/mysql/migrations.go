package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseInitMu sync.Mutex

// ApplyMigrations executes all embedded MySQL migrations against the database.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	gooseInitMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseInitMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("mysql: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("mysql: apply migrations: %w", err)
	}
	return nil
}

// Migrate opens the database described by cfg, applies migrations and closes it.
func Migrate(ctx context.Context, cfg *Config) error {
	db, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return ApplyMigrations(ctx, db)
}
