package order

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/logger"
)

const (
	OperationPlaceOrder              = "place_order"
	OperationPlaceOrderWithThreshold = "place_order_with_threshold"
	OperationMonthlyTotal            = "monthly_total"
)

// DefaultThreshold is the monthly total an order must help reach to be kept
// by PlaceOrderWithThreshold.
var DefaultThreshold = decimal.NewFromInt(10000)

var (
	// ErrAggregateNotFound means no monthly_sales row exists for the product
	// and month. It is distinct from a zero total.
	ErrAggregateNotFound = errors.New("order: monthly sales row not found")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("order: invalid request")
)

// Service runs the order workflows on a transaction executor.
type Service struct {
	exec      *txexec.Executor
	stmts     *Statements
	threshold decimal.Decimal
	validate  *validator.Validate
}

// Option configures a Service.
type Option func(*Service)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold decimal.Decimal) Option {
	return func(s *Service) { s.threshold = threshold }
}

// NewService returns a Service issuing stmts through exec.
func NewService(exec *txexec.Executor, stmts *Statements, opts ...Option) *Service {
	s := &Service{
		exec:      exec,
		stmts:     stmts,
		threshold: DefaultThreshold,
		validate:  newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})
	return v
}

// Threshold returns the configured threshold.
func (s *Service) Threshold() decimal.Decimal { return s.threshold }

// PlaceOrder inserts the order and increments the monthly total in one
// transaction. Either both changes are committed or neither is.
func (s *Service) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*txexec.Result, error) {
	if err := s.check(req); err != nil {
		return rejected(OperationPlaceOrder, err), err
	}
	return s.exec.Run(ctx, OperationPlaceOrder, func(ctx context.Context, tx *txexec.Tx) error {
		orderStmt, err := tx.Prepare(ctx, s.stmts.InsertOrder)
		if err != nil {
			return err
		}
		salesStmt, err := tx.Prepare(ctx, s.stmts.IncrementMonthlyTotal)
		if err != nil {
			return err
		}
		if err := orderStmt.Bind(req.ProductID, orderDate(req), req.Amount); err != nil {
			return err
		}
		if err := salesStmt.Bind(req.Amount, req.ProductID, req.ReportMonth); err != nil {
			return err
		}
		if _, err := orderStmt.ExecUpdate(ctx); err != nil {
			return err
		}
		return incrementTotal(ctx, salesStmt, s.stmts.IncrementMonthlyTotal)
	})
}

// PlaceOrderWithThreshold inserts a product, marks a savepoint, inserts the
// order and reads the monthly total. When total+amount is below the
// threshold the order insert is rolled back to the savepoint; the product
// insert survives. The monthly total is then incremented by the order amount
// whether or not the order was kept, and the unit is committed. Any
// statement failure rolls back everything, the product included.
func (s *Service) PlaceOrderWithThreshold(
	ctx context.Context,
	req *ThresholdOrderRequest,
) (*txexec.Result, error) {
	if err := s.check(req); err != nil {
		return rejected(OperationPlaceOrderWithThreshold, err), err
	}
	return s.exec.Run(ctx, OperationPlaceOrderWithThreshold, func(ctx context.Context, tx *txexec.Tx) error {
		log := logger.FromContext(ctx)
		productStmt, err := tx.Prepare(ctx, s.stmts.InsertProduct)
		if err != nil {
			return err
		}
		if err := productStmt.Bind(req.Product.Name, req.Product.Price); err != nil {
			return err
		}
		if _, err := productStmt.ExecUpdate(ctx); err != nil {
			return err
		}
		afterProduct, err := tx.Savepoint(ctx)
		if err != nil {
			return err
		}

		orderStmt, err := tx.Prepare(ctx, s.stmts.InsertOrder)
		if err != nil {
			return err
		}
		o := &req.Order
		if err := orderStmt.Bind(o.ProductID, orderDate(o), o.Amount); err != nil {
			return err
		}
		if _, err := orderStmt.ExecUpdate(ctx); err != nil {
			return err
		}

		total, err := s.readTotal(ctx, tx, o.ProductID, o.ReportMonth)
		if err != nil {
			return err
		}
		if projected := total.Add(o.Amount); projected.LessThan(s.threshold) {
			log.Info(
				"Order below monthly threshold, discarding order",
				"product_id", o.ProductID,
				"report_month", o.ReportMonth,
				"projected_total", projected.String(),
				"threshold", s.threshold.String(),
			)
			if err := tx.RollbackTo(ctx, afterProduct); err != nil {
				return err
			}
		}

		salesStmt, err := tx.Prepare(ctx, s.stmts.IncrementMonthlyTotal)
		if err != nil {
			return err
		}
		if err := salesStmt.Bind(o.Amount, o.ProductID, o.ReportMonth); err != nil {
			return err
		}
		return incrementTotal(ctx, salesStmt, s.stmts.IncrementMonthlyTotal)
	})
}

// MonthlyTotal reads the running total for productID and reportMonth. The
// Result is never nil.
func (s *Service) MonthlyTotal(
	ctx context.Context,
	productID int64,
	reportMonth int,
) (decimal.Decimal, *txexec.Result, error) {
	var total decimal.Decimal
	res, err := s.exec.Run(ctx, OperationMonthlyTotal, func(ctx context.Context, tx *txexec.Tx) error {
		var err error
		total, err = s.readTotal(ctx, tx, productID, reportMonth)
		return err
	})
	if err != nil {
		return decimal.Zero, res, err
	}
	return total, res, nil
}

func (s *Service) readTotal(
	ctx context.Context,
	tx *txexec.Tx,
	productID int64,
	reportMonth int,
) (decimal.Decimal, error) {
	query := s.stmts.SelectMonthlyTotal
	stmt, err := tx.Prepare(ctx, query)
	if err != nil {
		return decimal.Zero, err
	}
	if err := stmt.Bind(productID, reportMonth); err != nil {
		return decimal.Zero, err
	}
	rows, err := stmt.ExecQuery(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return decimal.Zero, &txexec.StatementError{Op: txexec.OpQuery, Query: query, Err: err}
		}
		return decimal.Zero, &txexec.StatementError{
			Op:    txexec.OpQuery,
			Query: query,
			Err:   fmt.Errorf("%w: product %d month %d", ErrAggregateNotFound, productID, reportMonth),
		}
	}
	var total decimal.Decimal
	if err := rows.Scan(&total); err != nil {
		return decimal.Zero, &txexec.StatementError{Op: txexec.OpScan, Query: query, Err: err}
	}
	if err := rows.Close(); err != nil {
		return decimal.Zero, &txexec.StatementError{Op: txexec.OpQuery, Query: query, Err: err}
	}
	return total, nil
}

// incrementTotal treats an update that matched no row as a missing aggregate
// so the order is never committed without its total.
func incrementTotal(ctx context.Context, stmt txexec.Statement, query string) error {
	n, err := stmt.ExecUpdate(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return &txexec.StatementError{Op: txexec.OpExecute, Query: query, Err: ErrAggregateNotFound}
	}
	return nil
}

func (s *Service) check(req any) error {
	if req == nil || reflect.ValueOf(req).IsNil() {
		return fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func rejected(operation string, err error) *txexec.Result {
	return &txexec.Result{Operation: operation, Outcome: txexec.OutcomeNotStarted, Err: err}
}

// orderDate binds the calendar date of the order, dropping the time of day.
func orderDate(req *PlaceOrderRequest) time.Time {
	y, m, d := req.OrderDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
