package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/compozy/ordertx/pkg/logger"

	// Register pgx stdlib driver for database/sql usage in migrations.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS
var gooseMu sync.Mutex

const migrationLockTimeout = 45 * time.Second

// ApplyMigrations acquires a Postgres advisory lock and runs the embedded
// migrations with goose. dsn must be understood by the pgx stdlib driver.
func ApplyMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer conn.Close()
	log := logger.FromContext(ctx)
	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(
		lockCtx,
		"select pg_advisory_lock(hashtext($1), hashtext($2))",
		"ordertx",
		"migrations",
	); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(
			context.WithoutCancel(ctx),
			"select pg_advisory_unlock(hashtext($1), hashtext($2))",
			"ordertx",
			"migrations",
		); err != nil {
			log.Warn("Failed to release migration advisory lock", "error", err)
		}
	}()
	return runMigrations(ctx, db)
}

// Migrate applies migrations to the database described by cfg.
func Migrate(ctx context.Context, cfg *Config) error {
	return ApplyMigrations(ctx, dsn(cfg))
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
