package order

import (
	"fmt"

	"github.com/Masterminds/squirrel"
)

// Dialect selects the placeholder style of generated statements.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// Statements holds the SQL text used by the workflows.
type Statements struct {
	InsertProduct         string
	InsertOrder           string
	SelectMonthlyTotal    string
	IncrementMonthlyTotal string
}

// BuildStatements renders the workflow statements for d. Parameters are
// positional:
//
//	InsertProduct         (name, price)
//	InsertOrder           (product_id, order_date, amount)
//	SelectMonthlyTotal    (product_id, report_month)
//	IncrementMonthlyTotal (amount, product_id, report_month)
func BuildStatements(d Dialect) (*Statements, error) {
	var ph squirrel.PlaceholderFormat
	switch d {
	case DialectSQLite, DialectMySQL:
		ph = squirrel.Question
	case DialectPostgres:
		ph = squirrel.Dollar
	default:
		return nil, fmt.Errorf("order: unsupported dialect %q", d)
	}
	var (
		s   Statements
		err error
	)
	if s.InsertProduct, _, err = squirrel.Insert("products").
		Columns("product_name", "price").
		Values(nil, nil).
		PlaceholderFormat(ph).
		ToSql(); err != nil {
		return nil, fmt.Errorf("order: build insert product: %w", err)
	}
	if s.InsertOrder, _, err = squirrel.Insert("orders").
		Columns("product_id", "order_date", "amount").
		Values(nil, nil, nil).
		PlaceholderFormat(ph).
		ToSql(); err != nil {
		return nil, fmt.Errorf("order: build insert order: %w", err)
	}
	if s.SelectMonthlyTotal, _, err = squirrel.Select("total_amount").
		From("monthly_sales").
		Where("product_id = ? AND report_month = ?", nil, nil).
		PlaceholderFormat(ph).
		ToSql(); err != nil {
		return nil, fmt.Errorf("order: build select total: %w", err)
	}
	if s.IncrementMonthlyTotal, _, err = squirrel.Update("monthly_sales").
		Set("total_amount", squirrel.Expr("total_amount + ?", nil)).
		Where("product_id = ? AND report_month = ?", nil, nil).
		PlaceholderFormat(ph).
		ToSql(); err != nil {
		return nil, fmt.Errorf("order: build increment total: %w", err)
	}
	return &s, nil
}

// MustBuildStatements is BuildStatements for dialects known at compile time.
func MustBuildStatements(d Dialect) *Statements {
	s, err := BuildStatements(d)
	if err != nil {
		panic(err)
	}
	return s
}
