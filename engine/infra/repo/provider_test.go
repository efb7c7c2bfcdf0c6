package repo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/ordertx/engine/order"
	"github.com/compozy/ordertx/pkg/config"
)

func TestNewProvider(t *testing.T) {
	t.Run("Should build a migrated sqlite backend", func(t *testing.T) {
		ctx := t.Context()
		cfg := config.Default().Database
		cfg.Path = filepath.Join(t.TempDir(), "orders.db")
		p, err := NewProvider(ctx, &cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, order.DialectSQLite, p.Dialect())
		assert.Contains(t, p.Statements().InsertOrder, "VALUES (?,?,?)")
		require.NoError(t, p.Migrate(ctx))

		session, err := p.Connector().Connect(ctx)
		require.NoError(t, err)
		require.NoError(t, session.Close(ctx))
		require.NoError(t, p.Close(ctx))
	})

	t.Run("Should build a mysql backend without dialing", func(t *testing.T) {
		cfg := config.Default().Database
		cfg.Driver = "mysql"
		cfg.Port = "3307"
		p, err := NewProvider(t.Context(), &cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, order.DialectMySQL, p.Dialect())
	})

	t.Run("Should reject a non-numeric mysql port", func(t *testing.T) {
		cfg := config.Default().Database
		cfg.Driver = "mysql"
		cfg.Port = "db"
		_, err := NewProvider(t.Context(), &cfg, nil)
		assert.ErrorContains(t, err, "invalid mysql port")
	})

	t.Run("Should reject an unknown driver", func(t *testing.T) {
		cfg := config.Default().Database
		cfg.Driver = "oracle"
		_, err := NewProvider(t.Context(), &cfg, nil)
		assert.Error(t, err)
	})
}
