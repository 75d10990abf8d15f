package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are rendered as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	// StatusPendingPayment is set at creation and never by an admin.
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPending        OrderStatus = "pending"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
)

// AssignableStatuses lists the statuses an admin may set, in display order.
var AssignableStatuses = []OrderStatus{StatusPending, StatusCompleted, StatusCancelled}

// ParseOrderStatus lower-cases s and reports whether it is assignable.
// Surrounding whitespace is not stripped.
func ParseOrderStatus(s string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToLower(s))
	for _, st := range AssignableStatuses {
		if candidate == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid order status: %q", s)
}

// AllowedStatusList renders AssignableStatuses as "a, b, c".
func AllowedStatusList() string {
	names := make([]string, len(AssignableStatuses))
	for i, st := range AssignableStatuses {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

// OrderItem represents a single line within an order.
// PriceAtPurchase is captured at order time and never updated.
type OrderItem struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID         string          `json:"order_id" gorm:"index;type:varchar(36)"`
	ProductID       string          `json:"product_id" gorm:"type:varchar(36)"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase" gorm:"type:numeric(12,2)"`
	Product         *ProductSummary `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

// Subtotal is price × quantity for the line.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order represents a customer order.
type Order struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string          `json:"user_id" gorm:"index;type:varchar(36)"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2)"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(32);index"`
	ShippingAddress string          `json:"shipping_address"`
	ShippingCity    string          `json:"shipping_city"`
	ShippingState   string          `json:"shipping_state"`
	ShippingZipCode string          `json:"shipping_zip_code"`
	ShippingCountry string          `json:"shipping_country"`
	ShippingPhone   string          `json:"shipping_phone"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"order_items,omitempty" gorm:"foreignKey:OrderID"`
	User            *UserContact    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TotalOf sums the line subtotals.
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderSummary is the minimal view returned after creation.
type OrderSummary struct {
	ID          string          `json:"id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Summary projects the order onto its creation summary.
func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
}
