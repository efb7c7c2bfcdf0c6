package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/logger"
)

const (
	defaultMaxConns           = 10
	defaultMinConns           = 0
	defaultHealthCheckPeriod  = 30 * time.Second
	defaultConnectTimeout     = 5 * time.Second
	defaultPingTimeout        = 3 * time.Second
	defaultHealthCheckTimeout = 1 * time.Second
)

// Store is the PostgreSQL driver backed by pgxpool.Pool.
type Store struct {
	pool               *pgxpool.Pool
	metrics            *poolMetrics
	healthCheckTimeout time.Duration
}

// NewStore initializes the pgx pool using the provided config and performs a
// health check.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres: config is required")
	}
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	metricsTracker, mErr := configurePostgresMetrics(cfg)
	if mErr != nil {
		logger.FromContext(ctx).With("err", mErr).Warn("Postgres metrics not initialized; continuing without metrics")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		metricsTracker.unregister()
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	pingTimeout := defaultPingTimeout
	if cfg.PingTimeout > 0 {
		pingTimeout = cfg.PingTimeout
	}
	if err := verifyPoolConnection(ctx, pool, metricsTracker, pingTimeout); err != nil {
		return nil, err
	}
	metricsTracker.attach(pool)
	healthCheckTimeout := defaultHealthCheckTimeout
	if cfg.HealthCheckTimeout > 0 {
		healthCheckTimeout = cfg.HealthCheckTimeout
	}
	logStoreInitialization(ctx, cfg, poolCfg.MaxConns, poolCfg.MinConns)
	return &Store{pool: pool, metrics: metricsTracker, healthCheckTimeout: healthCheckTimeout}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close(ctx context.Context) error {
	s.metrics.unregister()
	s.pool.Close()
	logger.FromContext(ctx).Info("Postgres store closed")
	return nil
}

// HealthCheck verifies the connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	timeout := s.healthCheckTimeout
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.pool.Ping(hctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// Connector hands out sessions pinned to a connection acquired from the pool.
// Closing the session returns the connection.
func (s *Store) Connector() txexec.Connector {
	return txexec.ConnectorFunc(func(ctx context.Context) (txexec.Session, error) {
		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("postgres: acquire connection: %w", err)
		}
		return NewSession(conn, conn.Release), nil
	})
}

// clampIntToInt32WithLimit clamps value to [0, limit] and int32 bounds.
func clampIntToInt32WithLimit(value int, limit int32) int32 {
	if value <= 0 || limit <= 0 {
		return 0
	}
	if value > int(math.MaxInt32) {
		if limit < math.MaxInt32 {
			return limit
		}
		return math.MaxInt32
	}
	if value >= int(limit) {
		return limit
	}
	return int32(value)
}

func buildPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	maxConns, minConns := deriveConnectionBounds(cfg)
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	} else {
		poolCfg.HealthCheckPeriod = defaultHealthCheckPeriod
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	} else {
		poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	return poolCfg, nil
}

func deriveConnectionBounds(cfg *Config) (int32, int32) {
	maxConns := int32(defaultMaxConns)
	if cfg.MaxOpenConns > 0 {
		if cfg.MaxOpenConns > int(math.MaxInt32) {
			maxConns = math.MaxInt32
		} else {
			maxConns = int32(cfg.MaxOpenConns)
		}
	}
	minConns := int32(defaultMinConns)
	if cfg.MaxIdleConns > 0 {
		if candidate := clampIntToInt32WithLimit(cfg.MaxIdleConns, maxConns); candidate > 0 {
			minConns = candidate
		}
	}
	return maxConns, minConns
}

// verifyPoolConnection pings the pool and cleans up on failure.
func verifyPoolConnection(
	ctx context.Context,
	pool *pgxpool.Pool,
	metricsTracker *poolMetrics,
	pingTimeout time.Duration,
) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		metricsTracker.unregister()
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func logStoreInitialization(ctx context.Context, cfg *Config, maxConns int32, minConns int32) {
	logger.FromContext(ctx).With(
		"store_driver", "postgres",
		"host", cfg.Host,
		"port", cfg.Port,
		"db_name", cfg.DBName,
		"ssl_mode", cfg.SSLMode,
		"max_conns", maxConns,
		"min_conns", minConns,
	).Info("Store initialized")
}
