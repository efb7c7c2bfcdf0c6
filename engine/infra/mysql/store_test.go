package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	t.Run("Should build DSN from discrete fields", func(t *testing.T) {
		dsn, err := buildDSN(&Config{
			Host:     "localhost",
			User:     "root",
			Password: "secret",
			DBName:   "jdbctransactiondemo",
		})
		require.NoError(t, err)
		assert.Contains(t, dsn, "root:secret@tcp(localhost:3306)/jdbctransactiondemo")
		assert.Contains(t, dsn, "parseTime=true")
		assert.Contains(t, dsn, "timeout=5s")
	})
	t.Run("Should use configured port and dial timeout", func(t *testing.T) {
		dsn, err := buildDSN(&Config{Host: "db", Port: 3307, DBName: "orders", DialTimeout: time.Second})
		require.NoError(t, err)
		assert.Contains(t, dsn, "tcp(db:3307)/orders")
		assert.Contains(t, dsn, "timeout=1s")
	})
	t.Run("Should force parseTime on a raw connection string", func(t *testing.T) {
		dsn, err := buildDSN(&Config{ConnString: "app:pw@tcp(10.0.0.1:3306)/shop", Host: "ignored"})
		require.NoError(t, err)
		assert.Contains(t, dsn, "app:pw@tcp(10.0.0.1:3306)/shop")
		assert.Contains(t, dsn, "parseTime=true")
	})
	t.Run("Should reject malformed connection string", func(t *testing.T) {
		_, err := buildDSN(&Config{ConnString: "not a dsn"})
		assert.Error(t, err)
	})
	t.Run("Should require host and database", func(t *testing.T) {
		_, err := buildDSN(&Config{DBName: "x"})
		assert.Error(t, err)
		_, err = buildDSN(&Config{Host: "x"})
		assert.Error(t, err)
	})
}
