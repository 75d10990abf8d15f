package repositories

import "context"

// CartRepository gives the order workflow delete-only access to carts.
type CartRepository interface {
	GetCartIDByUserID(ctx context.Context, userID string) (string, error)
	ClearItems(ctx context.Context, cartID string) error
}
