package repositories

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// InMemoryCartRepository is an in-memory implementation of CartRepository.
type InMemoryCartRepository struct {
	carts map[string]string // user id -> cart id
	items map[string][]models.CartItem
	mu    sync.RWMutex
}

// NewInMemoryCartRepository creates a new instance of InMemoryCartRepository.
func NewInMemoryCartRepository() *InMemoryCartRepository {
	return &InMemoryCartRepository{
		carts: make(map[string]string),
		items: make(map[string][]models.CartItem),
	}
}

// AddItem puts a line into the user's cart, creating the cart on first use.
func (r *InMemoryCartRepository) AddItem(userID, productID string, qty int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cartID, ok := r.carts[userID]
	if !ok {
		cartID = uuid.New().String()
		r.carts[userID] = cartID
	}
	r.items[cartID] = append(r.items[cartID], models.CartItem{
		ID:        uuid.New().String(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
	})
	return cartID
}

// Items returns the lines of a cart.
func (r *InMemoryCartRepository) Items(cartID string) []models.CartItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.CartItem(nil), r.items[cartID]...)
}

// GetCartIDByUserID resolves the cart owned by userID.
func (r *InMemoryCartRepository) GetCartIDByUserID(_ context.Context, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cartID, ok := r.carts[userID]
	if !ok {
		return "", fmt.Errorf("cart of user %s: %w", userID, ErrNotFound)
	}
	return cartID, nil
}

// ClearItems deletes every line of the cart.
func (r *InMemoryCartRepository) ClearItems(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, cartID)
	return nil
}
