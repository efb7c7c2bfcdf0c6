package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/compozy/ordertx/engine/infra/repo"
	"github.com/compozy/ordertx/engine/order"
	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/config"
	"github.com/compozy/ordertx/pkg/logger"
)

const (
	dateLayout = "2006-01-02"

	defaultProductID   = 1
	defaultReportMonth = 7
	defaultAmount      = "580"
	defaultProductName = "iPod"
	defaultPrice       = "399"
)

// PlaceOrderCmd records one order and its monthly total atomically.
func PlaceOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place-order",
		Short: "Insert an order and add its amount to the monthly total in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := placeOrderRequest(cmd)
			if err != nil {
				return err
			}
			return runOrderCommand(cmd, func(ctx context.Context, svc *order.Service) (*txexec.Result, map[string]string, error) {
				res, err := svc.PlaceOrder(ctx, req)
				return res, orderDetails(req), err
			})
		},
	}
	addOrderFlags(cmd)
	return cmd
}

// PlaceOrderThresholdCmd runs the savepoint workflow.
func PlaceOrderThresholdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place-order-threshold",
		Short: "Insert a product and an order, keeping the order only when the monthly total reaches the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := placeOrderRequest(cmd)
			if err != nil {
				return err
			}
			p, err := newProduct(cmd)
			if err != nil {
				return err
			}
			req := &order.ThresholdOrderRequest{Product: *p, Order: *o}
			return runOrderCommand(cmd, func(ctx context.Context, svc *order.Service) (*txexec.Result, map[string]string, error) {
				res, err := svc.PlaceOrderWithThreshold(ctx, req)
				details := orderDetails(o)
				details["product_name"] = p.Name
				details["threshold"] = svc.Threshold().String()
				if res != nil && res.Committed() {
					details["order_kept"] = fmt.Sprint(!res.PartialRollback)
				}
				return res, details, err
			})
		},
	}
	addOrderFlags(cmd)
	cmd.Flags().String("product-name", defaultProductName, "Name of the product inserted ahead of the savepoint")
	cmd.Flags().String("price", defaultPrice, "Price of the inserted product")
	return cmd
}

// MonthlyTotalCmd prints the running total of one product and month.
func MonthlyTotalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monthly-total",
		Short: "Show the monthly sales total of a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			productID, err := cmd.Flags().GetInt64("product-id")
			if err != nil {
				return err
			}
			month, err := cmd.Flags().GetInt("month")
			if err != nil {
				return err
			}
			return runOrderCommand(cmd, func(ctx context.Context, svc *order.Service) (*txexec.Result, map[string]string, error) {
				total, res, err := svc.MonthlyTotal(ctx, productID, month)
				return res, map[string]string{
					"product_id":   fmt.Sprint(productID),
					"report_month": fmt.Sprint(month),
					"total_amount": total.String(),
				}, err
			})
		},
	}
	cmd.Flags().Int64("product-id", defaultProductID, "Product to report on")
	cmd.Flags().Int("month", defaultReportMonth, "Report month (1-12)")
	return cmd
}

func addOrderFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("product-id", defaultProductID, "Product the order refers to")
	cmd.Flags().String("date", "", "Order date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().String("amount", defaultAmount, "Order amount")
	cmd.Flags().Int("month", defaultReportMonth, "Report month whose total is incremented (1-12)")
	cmd.Flags().Bool("metrics", false, "Print transaction metrics after the run")
}

func placeOrderRequest(cmd *cobra.Command) (*order.PlaceOrderRequest, error) {
	productID, err := cmd.Flags().GetInt64("product-id")
	if err != nil {
		return nil, err
	}
	month, err := cmd.Flags().GetInt("month")
	if err != nil {
		return nil, err
	}
	amount, err := decimalFlag(cmd, "amount")
	if err != nil {
		return nil, err
	}
	date := time.Now()
	raw, err := cmd.Flags().GetString("date")
	if err != nil {
		return nil, err
	}
	if raw != "" {
		if date, err = time.Parse(dateLayout, raw); err != nil {
			return nil, fmt.Errorf("invalid --date %q: %w", raw, err)
		}
	}
	return &order.PlaceOrderRequest{
		ProductID:   productID,
		OrderDate:   date,
		Amount:      amount,
		ReportMonth: month,
	}, nil
}

func newProduct(cmd *cobra.Command) (*order.NewProduct, error) {
	name, err := cmd.Flags().GetString("product-name")
	if err != nil {
		return nil, err
	}
	price, err := decimalFlag(cmd, "price")
	if err != nil {
		return nil, err
	}
	return &order.NewProduct{Name: name, Price: price}, nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return d, nil
}

func orderDetails(req *order.PlaceOrderRequest) map[string]string {
	return map[string]string{
		"product_id":   fmt.Sprint(req.ProductID),
		"order_date":   req.OrderDate.Format(dateLayout),
		"amount":       req.Amount.String(),
		"report_month": fmt.Sprint(req.ReportMonth),
	}
}

type orderFunc func(ctx context.Context, svc *order.Service) (*txexec.Result, map[string]string, error)

// runOrderCommand connects an executor to the configured backend, runs fn
// and prints its result. The executor is always disconnected.
func runOrderCommand(cmd *cobra.Command, fn orderFunc) error {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err = resolveFormat(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	provider, err := repo.NewProvider(ctx, &cfg.Database, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to close storage backend", "error", err)
		}
	}()
	metrics, err := txexec.NewMetrics(reg)
	if err != nil {
		return err
	}
	exec := txexec.NewExecutor(
		provider.Connector(),
		txexec.WithMetrics(metrics),
		txexec.WithConnectRetry(cfg.Database.ConnectAttempts, cfg.Database.ConnectBackoff),
	)
	if err := exec.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := exec.Disconnect(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to disconnect", "error", err)
		}
	}()

	svc := order.NewService(exec, provider.Statements(), order.WithThreshold(cfg.Order.ThresholdDecimal()))
	res, details, runErr := fn(ctx, svc)
	if res != nil {
		if err := writeResult(cmd.OutOrStdout(), format, newResultView(res, details)); err != nil {
			return err
		}
	}
	if show, _ := cmd.Flags().GetBool("metrics"); show {
		families, err := reg.Gather()
		if err != nil {
			return fmt.Errorf("gather metrics: %w", err)
		}
		if err := writeMetrics(cmd.OutOrStdout(), families); err != nil {
			return err
		}
	}
	return runErr
}
