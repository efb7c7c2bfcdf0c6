package repo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compozy/ordertx/engine/infra/mysql"
	"github.com/compozy/ordertx/engine/infra/postgres"
	"github.com/compozy/ordertx/engine/infra/sqlite"
	"github.com/compozy/ordertx/engine/order"
	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/config"
)

// Provider exposes the storage backend selected by configuration. It returns
// txexec and order types rather than driver-specific ones.
type Provider struct {
	dialect   order.Dialect
	connector txexec.Connector
	migrate   func(ctx context.Context) error
	close     func(ctx context.Context) error
}

// NewProvider builds the backend for cfg.Driver. reg receives driver pool
// metrics when the driver exposes any; it may be nil.
func NewProvider(ctx context.Context, cfg *config.DatabaseConfig, reg prometheus.Registerer) (*Provider, error) {
	switch cfg.Driver {
	case "sqlite":
		sc := &sqlite.Config{Path: cfg.Path, BusyTimeout: cfg.BusyTimeout}
		return &Provider{
			dialect:   order.DialectSQLite,
			connector: sqlite.Connector(sc),
			migrate:   func(ctx context.Context) error { return sqlite.Migrate(ctx, sc) },
			close:     noopClose,
		}, nil
	case "mysql":
		mc, err := mysqlConfig(cfg)
		if err != nil {
			return nil, err
		}
		return &Provider{
			dialect:   order.DialectMySQL,
			connector: mysql.Connector(mc),
			migrate:   func(ctx context.Context) error { return mysql.Migrate(ctx, mc) },
			close:     noopClose,
		}, nil
	case "postgres":
		pc := &postgres.Config{
			ConnString: cfg.ConnString,
			Host:       cfg.Host,
			Port:       cfg.Port,
			User:       cfg.User,
			Password:   cfg.Password.Value(),
			DBName:     cfg.DBName,
			SSLMode:    cfg.SSLMode,
			Registerer: reg,
		}
		store, err := postgres.NewStore(ctx, pc)
		if err != nil {
			return nil, err
		}
		return &Provider{
			dialect:   order.DialectPostgres,
			connector: store.Connector(),
			migrate:   func(ctx context.Context) error { return postgres.Migrate(ctx, pc) },
			close:     store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("repo: unsupported database driver %q", cfg.Driver)
	}
}

func mysqlConfig(cfg *config.DatabaseConfig) (*mysql.Config, error) {
	mc := &mysql.Config{
		ConnString: cfg.ConnString,
		Host:       cfg.Host,
		User:       cfg.User,
		Password:   cfg.Password.Value(),
		DBName:     cfg.DBName,
	}
	if cfg.Port != "" {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("repo: invalid mysql port %q: %w", cfg.Port, err)
		}
		mc.Port = port
	}
	return mc, nil
}

func noopClose(context.Context) error { return nil }

// Dialect returns the statement dialect of the backend.
func (p *Provider) Dialect() order.Dialect { return p.dialect }

// Connector returns the session factory for txexec.Executor.
func (p *Provider) Connector() txexec.Connector { return p.connector }

// Statements renders the order statements for the backend dialect.
func (p *Provider) Statements() *order.Statements { return order.MustBuildStatements(p.dialect) }

// Migrate applies the embedded schema migrations of the backend.
func (p *Provider) Migrate(ctx context.Context) error { return p.migrate(ctx) }

// Close releases resources held by the backend.
func (p *Provider) Close(ctx context.Context) error { return p.close(ctx) }
