package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/compozy/ordertx/engine/infra/sqldb"
	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/logger"
)

const memoryPath = ":memory:"

// Store owns a database/sql pool for one SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the database described by cfg and verifies it responds.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("SQLite store ready", "path", cfg.Path)
	return &Store{db: db, path: cfg.Path}, nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("sqlite: close store: %w", err)
	}
	logger.FromContext(ctx).Debug("SQLite store closed", "path", s.path)
	return nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return errors.New("sqlite: store closed")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check: %w", err)
	}
	return nil
}

// Connector returns a txexec.Connector opening a fresh pool per session.
// The session closes its pool when it is closed.
func Connector(cfg *Config) txexec.Connector {
	return txexec.ConnectorFunc(func(ctx context.Context) (txexec.Session, error) {
		db, err := open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		session, err := sqldb.NewSession(ctx, db, sqldb.OwnDB())
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return session, nil
	})
}

func open(ctx context.Context, cfg *Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, errors.New("sqlite: config is required")
	}
	dsn, memory, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	configurePool(db, cfg, memory)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	return db, nil
}

func configurePool(db *sql.DB, cfg *Config, memory bool) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if memory {
		// a shared-cache memory database disappears with its last connection
		db.SetConnMaxLifetime(0)
		db.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
	}
}

// buildDSN renders the modernc DSN for cfg and reports whether it targets
// an in-memory database.
func buildDSN(cfg *Config) (string, bool, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", false, errors.New("sqlite: database path is required")
	}
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(ON)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout().Milliseconds()))
	if path == memoryPath {
		params.Set("cache", "shared")
		return "file::memory:?" + params.Encode(), true, nil
	}
	params.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + params.Encode(), false, nil
}
