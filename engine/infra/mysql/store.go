package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/compozy/ordertx/engine/infra/sqldb"
	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/logger"
)

const (
	defaultPort        = 3306
	defaultDialTimeout = 5 * time.Second
)

// Connector returns a txexec.Connector opening a fresh pool per session.
func Connector(cfg *Config) txexec.Connector {
	return txexec.ConnectorFunc(func(ctx context.Context) (txexec.Session, error) {
		db, err := Open(ctx, cfg)
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

// Open creates a pool for cfg and verifies the server is reachable.
func Open(ctx context.Context, cfg *Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping database: %w", err)
	}
	logger.FromContext(ctx).Debug("MySQL connection ready", "host", cfg.Host, "database", cfg.DBName)
	return db, nil
}

func buildDSN(cfg *Config) (string, error) {
	if cfg == nil {
		return "", errors.New("mysql: config is required")
	}
	if cfg.ConnString != "" {
		parsed, err := driver.ParseDSN(cfg.ConnString)
		if err != nil {
			return "", fmt.Errorf("mysql: parse connection string: %w", err)
		}
		parsed.ParseTime = true
		return parsed.FormatDSN(), nil
	}
	if cfg.Host == "" {
		return "", errors.New("mysql: host is required")
	}
	if cfg.DBName == "" {
		return "", errors.New("mysql: database name is required")
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dc := driver.NewConfig()
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.DBName = cfg.DBName
	dc.ParseTime = true
	dc.Timeout = timeout
	dc.MultiStatements = true
	return dc.FormatDSN(), nil
}
