package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a row of the products table.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Order is a row of the orders table. ProductID must reference an existing
// product; the storage layer enforces it.
type Order struct {
	ID        int64
	ProductID int64
	OrderDate time.Time
	Amount    decimal.Decimal
}

// MonthlySales is the running total of one product for one report month.
// Rows are created out of band; the workflows only increment them.
type MonthlySales struct {
	ProductID   int64
	ReportMonth int
	TotalAmount decimal.Decimal
}

// PlaceOrderRequest records an order and adds its amount to the monthly total.
type PlaceOrderRequest struct {
	ProductID   int64           `validate:"gt=0"`
	OrderDate   time.Time       `validate:"required"`
	Amount      decimal.Decimal `validate:"gt=0"`
	ReportMonth int             `validate:"min=1,max=12"`
}

// NewProduct describes the product inserted ahead of the savepoint.
type NewProduct struct {
	Name  string          `validate:"required,max=255"`
	Price decimal.Decimal `validate:"gte=0"`
}

// ThresholdOrderRequest inserts a product, then places an order that is only
// kept when it lifts the monthly total to the threshold.
type ThresholdOrderRequest struct {
	Product NewProduct
	Order   PlaceOrderRequest
}
