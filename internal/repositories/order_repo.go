package repositories

import (
	"context"

	"storefront/internal/models"
)

// OrderFilter narrows an order listing.
type OrderFilter struct {
	UserID      string // empty means every user
	ExpandUsers bool
	Offset      int
	Limit       int // zero means no limit
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	// Delete removes an order and its lines. Deleting an absent order is not an error.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// List returns the matching page newest first, plus the unpaged count.
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
}

// Transactor runs fn against repositories bound to a single transaction.
// fn returning an error rolls the transaction back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(orders OrderRepository, products ProductRepository) error) error
}
