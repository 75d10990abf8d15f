package repositories

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"gorm.io/gorm"
)

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// GetCartIDByUserID resolves the cart owned by userID.
func (r *GORMCartRepository) GetCartIDByUserID(ctx context.Context, userID string) (string, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).Select("id").First(&cart, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("cart of user %s: %w", userID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get cart of user %s: %w", userID, err)
	}
	return cart.ID, nil
}

// ClearItems deletes every line of the cart.
func (r *GORMCartRepository) ClearItems(ctx context.Context, cartID string) error {
	if err := r.db.WithContext(ctx).Delete(&models.CartItem{}, "cart_id = ?", cartID).Error; err != nil {
		return fmt.Errorf("failed to clear cart %s: %w", cartID, err)
	}
	return nil
}
