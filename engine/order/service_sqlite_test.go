package order_test

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/ordertx/engine/infra/sqlite"
	"github.com/compozy/ordertx/engine/order"
	"github.com/compozy/ordertx/engine/txexec"
)

type sqliteFixture struct {
	db  *sql.DB
	svc *order.Service
}

// newSQLiteFixture migrates a fresh database holding product 1 ("iPod")
// with a July total of seedTotal.
func newSQLiteFixture(t *testing.T, seedTotal int64) *sqliteFixture {
	t.Helper()
	ctx := testCtx(t)
	cfg := &sqlite.Config{Path: filepath.Join(t.TempDir(), "orders.db")}
	require.NoError(t, sqlite.Migrate(ctx, cfg))

	store, err := sqlite.NewStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })
	db := store.DB()
	_, err = db.ExecContext(ctx, "INSERT INTO products (product_id, product_name, price) VALUES (1, 'iPod', 399)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		"INSERT INTO monthly_sales (product_id, report_month, total_amount) VALUES (1, 7, ?)", seedTotal)
	require.NoError(t, err)

	exec := txexec.NewExecutor(sqlite.Connector(cfg))
	require.NoError(t, exec.Connect(ctx))
	t.Cleanup(func() { _ = exec.Disconnect(ctx) })
	return &sqliteFixture{db: db, svc: order.NewService(exec, order.MustBuildStatements(order.DialectSQLite))}
}

func (f *sqliteFixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (f *sqliteFixture) julyTotal(t *testing.T) decimal.Decimal {
	t.Helper()
	var total decimal.Decimal
	require.NoError(t, f.db.QueryRowContext(t.Context(),
		"SELECT total_amount FROM monthly_sales WHERE product_id = 1 AND report_month = 7").Scan(&total))
	return total
}

func julyOrder(productID int64) order.PlaceOrderRequest {
	return order.PlaceOrderRequest{
		ProductID:   productID,
		OrderDate:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromInt(580),
		ReportMonth: 7,
	}
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func TestService_SQLite(t *testing.T) {
	t.Run("Should persist order and total together", func(t *testing.T) {
		f := newSQLiteFixture(t, 0)
		req := julyOrder(1)
		res, err := f.svc.PlaceOrder(testCtx(t), &req)
		require.NoError(t, err)
		assert.True(t, res.Committed())
		assert.Equal(t, 1, f.count(t, "orders"))
		assertDecimal(t, 580, f.julyTotal(t))
	})

	t.Run("Should leave no trace when the order insert fails", func(t *testing.T) {
		f := newSQLiteFixture(t, 100)
		req := julyOrder(99)
		res, err := f.svc.PlaceOrder(testCtx(t), &req)
		var stmtErr *txexec.StatementError
		require.ErrorAs(t, err, &stmtErr)
		assert.Equal(t, txexec.OutcomeAborted, res.Outcome)
		assert.Zero(t, f.count(t, "orders"))
		assertDecimal(t, 100, f.julyTotal(t))
	})

	t.Run("Should roll back the order when the month has no total", func(t *testing.T) {
		f := newSQLiteFixture(t, 0)
		req := julyOrder(1)
		req.ReportMonth = 8
		_, err := f.svc.PlaceOrder(testCtx(t), &req)
		assert.ErrorIs(t, err, order.ErrAggregateNotFound)
		assert.Zero(t, f.count(t, "orders"))
	})

	t.Run("Should keep order that reaches the threshold", func(t *testing.T) {
		f := newSQLiteFixture(t, 9500)
		req := &order.ThresholdOrderRequest{
			Product: order.NewProduct{Name: "iPod nano", Price: decimal.NewFromInt(149)},
			Order:   julyOrder(1),
		}
		res, err := f.svc.PlaceOrderWithThreshold(testCtx(t), req)
		require.NoError(t, err)
		assert.True(t, res.Committed())
		assert.False(t, res.PartialRollback)
		assert.Equal(t, 2, f.count(t, "products"))
		assert.Equal(t, 1, f.count(t, "orders"))
		assertDecimal(t, 10080, f.julyTotal(t))
	})

	t.Run("Should discard order below threshold but keep product and total", func(t *testing.T) {
		f := newSQLiteFixture(t, 9000)
		req := &order.ThresholdOrderRequest{
			Product: order.NewProduct{Name: "iPod nano", Price: decimal.NewFromInt(149)},
			Order:   julyOrder(1),
		}
		res, err := f.svc.PlaceOrderWithThreshold(testCtx(t), req)
		require.NoError(t, err)
		assert.True(t, res.Committed())
		assert.True(t, res.PartialRollback)
		assert.Equal(t, 2, f.count(t, "products"))
		assert.Zero(t, f.count(t, "orders"))
		assertDecimal(t, 9580, f.julyTotal(t))

		total, _, err := f.svc.MonthlyTotal(testCtx(t), 1, 7)
		require.NoError(t, err)
		assertDecimal(t, 9580, total)
	})

	t.Run("Should discard the product too when a later statement fails", func(t *testing.T) {
		f := newSQLiteFixture(t, 9500)
		req := &order.ThresholdOrderRequest{
			Product: order.NewProduct{Name: "iPod nano", Price: decimal.NewFromInt(149)},
			Order:   julyOrder(99),
		}
		res, err := f.svc.PlaceOrderWithThreshold(testCtx(t), req)
		require.Error(t, err)
		assert.Equal(t, txexec.OutcomeAborted, res.Outcome)
		assert.Equal(t, 1, f.count(t, "products"))
		assert.Zero(t, f.count(t, "orders"))
		assertDecimal(t, 9500, f.julyTotal(t))
	})

	t.Run("Should run workflows back to back on one session", func(t *testing.T) {
		f := newSQLiteFixture(t, 9000)
		req := julyOrder(1)
		for range 3 {
			_, err := f.svc.PlaceOrder(testCtx(t), &req)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, f.count(t, "orders"))
		assertDecimal(t, 10740, f.julyTotal(t))
	})
}
