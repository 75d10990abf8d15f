package repositories

import (
	"context"

	"storefront/internal/models"
)

// ProductRepository defines the catalog lookups the order workflow needs.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	// DecrementStock fails with ErrInsufficientStock rather than going below zero.
	DecrementStock(ctx context.Context, id string, qty int) error
	Restock(ctx context.Context, id string, qty int) error
}
