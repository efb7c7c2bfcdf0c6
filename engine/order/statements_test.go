package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStatements(t *testing.T) {
	t.Run("Should render question placeholders for sqlite and mysql", func(t *testing.T) {
		for _, d := range []Dialect{DialectSQLite, DialectMySQL} {
			s, err := BuildStatements(d)
			require.NoError(t, err)
			assert.Equal(t, "INSERT INTO products (product_name,price) VALUES (?,?)", s.InsertProduct)
			assert.Equal(t, "INSERT INTO orders (product_id,order_date,amount) VALUES (?,?,?)", s.InsertOrder)
			assert.Equal(t,
				"SELECT total_amount FROM monthly_sales WHERE product_id = ? AND report_month = ?",
				s.SelectMonthlyTotal)
			assert.Equal(t,
				"UPDATE monthly_sales SET total_amount = total_amount + ? WHERE product_id = ? AND report_month = ?",
				s.IncrementMonthlyTotal)
		}
	})

	t.Run("Should render dollar placeholders for postgres", func(t *testing.T) {
		s, err := BuildStatements(DialectPostgres)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO orders (product_id,order_date,amount) VALUES ($1,$2,$3)", s.InsertOrder)
		assert.Equal(t,
			"UPDATE monthly_sales SET total_amount = total_amount + $1 WHERE product_id = $2 AND report_month = $3",
			s.IncrementMonthlyTotal)
	})

	t.Run("Should reject unknown dialects", func(t *testing.T) {
		_, err := BuildStatements("oracle")
		assert.ErrorContains(t, err, "unsupported dialect")
		assert.Panics(t, func() { MustBuildStatements("oracle") })
	})
}
