package repositories_test

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryOrderRepository()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := newOrder("u1", base)
	newer := newOrder("u1", base.Add(time.Minute))
	other := newOrder("u2", base.Add(2*time.Minute))
	for _, o := range []*models.Order{older, newer, other} {
		require.NoError(t, repo.Create(ctx, o))
	}

	assert.ErrorIs(t, repo.CreateItems(ctx, []models.OrderItem{{OrderID: "missing", ProductID: "p1", Quantity: 1}}), repositories.ErrNotFound)
	require.NoError(t, repo.CreateItems(ctx, []models.OrderItem{{OrderID: older.ID, ProductID: "p1", Quantity: 1}}))

	mine, total, err := repo.List(ctx, repositories.OrderFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Len(t, mine[1].Items, 1)

	page, total, err := repo.List(ctx, repositories.OrderFilter{Offset: 2, Limit: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, older.ID, page[0].ID)

	updated, err := repo.UpdateStatus(ctx, older.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)

	require.NoError(t, repo.Delete(ctx, older.ID))
	require.NoError(t, repo.Delete(ctx, older.ID))
	_, err = repo.GetByID(ctx, older.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.UpdateStatus(ctx, older.ID, models.StatusPending)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestInMemoryCartRepository(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryCartRepository()

	_, err := repo.GetCartIDByUserID(ctx, "u1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	cartID := repo.AddItem("u1", "p1", 2)
	assert.Equal(t, cartID, repo.AddItem("u1", "p2", 1))
	assert.Len(t, repo.Items(cartID), 2)

	got, err := repo.GetCartIDByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, repo.ClearItems(ctx, got))
	assert.Empty(t, repo.Items(cartID))
}
