package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testJWTSecret = "test_jwt_secret"
	adminUsername = "admin"
	adminPassword = "admin-password"
)

type testEnv struct {
	app  *fiber.App
	db   *gorm.DB
	auth *services.AuthService
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	log := zap.NewNop()

	// Initialize Repositories
	orderRepo := repositories.NewGORMOrderRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	cartRepo := repositories.NewGORMCartRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	// Initialize Services
	authService := services.NewAuthService(userRepo, testJWTSecret, time.Hour, log)
	orderService := services.NewOrderService(orderRepo, productRepo, cartRepo, nil,
		config.OrderConfig{DefaultCountry: "India", PageSize: 20, MaxPageSize: 100},
		log, services.WithTransactor(repositories.NewGORMTransactor(db)))
	require.NoError(t, authService.EnsureAdmin(context.Background(), adminUsername, "admin@example.com", adminPassword))

	// Initialize Handlers
	orderHandler := handlers.NewOrderHandler(orderService, log)
	authHandler := handlers.NewAuthHandler(authService, log)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService, log))
	orderHandler.RegisterRoutes(protectedRoutes)

	return &testEnv{app: app, db: db, auth: authService}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()
	status, _ := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, status)
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func orderBody(items ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"items":             items,
		"shipping_address":  "12 MG Road",
		"shipping_city":     "Bengaluru",
		"shipping_state":    "Karnataka",
		"shipping_zip_code": "560001",
		"shipping_phone":    "+91-9000000000",
	}
}

func line(productID string, qty int, price float64) map[string]interface{} {
	return map[string]interface{}{"product_id": productID, "quantity": qty, "price_at_purchase": price}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	env := setupApp(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User registered successfully", body["message"])
	user, _ := body["user"].(map[string]interface{})
	assert.Equal(t, models.RoleUser, user["role"])
	assert.NotContains(t, user, "password")

	// Test Duplicate Registration (username)
	status, _ = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	token := env.login(t, "testuser", "password123")
	caller, err := env.auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, caller.Role)

	status, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "testuser",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication failed", body["message"])
}

func TestCreateOrder(t *testing.T) {
	env := setupApp(t)
	env.register(t, "buyer")
	token := env.login(t, "buyer", "password123")
	caller, err := env.auth.ValidateToken(token)
	require.NoError(t, err)

	// Seed a product and a cart so the order can expand and clear them.
	product := models.Product{ID: "p1", Name: "Soap", Price: decimal.RequireFromString("9.99"), Stock: 10, ThumbnailURL: "https://cdn.example.com/soap.png"}
	require.NoError(t, env.db.Create(&product).Error)
	cart := models.Cart{ID: "cart-1", UserID: caller.UserID}
	require.NoError(t, env.db.Create(&cart).Error)
	require.NoError(t, env.db.Create(&models.CartItem{ID: "ci-1", CartID: cart.ID, ProductID: "p1", Quantity: 2}).Error)

	status, body := env.do(t, http.MethodPost, "/api/v1/orders", token, orderBody(line("p1", 2, 9.99)))
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Order created successfully", body["message"])
	order, _ := body["order"].(map[string]interface{})
	assert.NotEmpty(t, order["id"])
	assert.Equal(t, string(models.StatusPendingPayment), order["status"])
	assert.InDelta(t, 19.98, order["total_amount"], 0.0001)
	assert.NotEmpty(t, order["created_at"])

	var remaining int64
	require.NoError(t, env.db.Model(&models.CartItem{}).Where("cart_id = ?", cart.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	var stored models.Order
	require.NoError(t, env.db.First(&stored, "id = ?", order["id"]).Error)
	assert.Equal(t, "India", stored.ShippingCountry)
	assert.Equal(t, caller.UserID, stored.UserID)

	// The listing expands lines with their product summaries.
	status, body = env.do(t, http.MethodGet, "/api/v1/orders/my", token, nil)
	require.Equal(t, http.StatusOK, status)
	orders, _ := body["orders"].([]interface{})
	require.Len(t, orders, 1)
	first := orders[0].(map[string]interface{})
	lines, _ := first["order_items"].([]interface{})
	require.Len(t, lines, 1)
	productSummary, _ := lines[0].(map[string]interface{})["product"].(map[string]interface{})
	assert.Equal(t, "Soap", productSummary["name"])
	assert.Equal(t, "https://cdn.example.com/soap.png", productSummary["thumbnail_url"])
	assert.NotContains(t, first, "user")
}

func TestCreateOrder_Validation(t *testing.T) {
	env := setupApp(t)
	env.register(t, "buyer")
	token := env.login(t, "buyer", "password123")

	noItems := orderBody()
	noItems["items"] = []interface{}{}
	status, body := env.do(t, http.MethodPost, "/api/v1/orders", token, noItems)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Order items are required", body["message"])

	noPhone := orderBody(line("p1", 1, 1))
	delete(noPhone, "shipping_phone")
	status, body = env.do(t, http.MethodPost, "/api/v1/orders", token, noPhone)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "All shipping information is required", body["message"])

	status, body = env.do(t, http.MethodPost, "/api/v1/orders", token, orderBody(line("p1", 0, 1)))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid order items", body["message"])

	status, body = env.do(t, http.MethodPost, "/api/v1/orders", token, orderBody(line("p1", 3, 0.005)))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid order items", body["message"])

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	env := setupApp(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/orders/my"},
		{http.MethodGet, "/api/v1/orders/all"},
		{http.MethodPatch, "/api/v1/orders/some-id/status"},
	} {
		status, body := env.do(t, tc.method, tc.path, "", map[string]string{"status": "pending"})
		assert.Equal(t, http.StatusUnauthorized, status, tc.path)
		assert.Equal(t, "Authorization header is required", body["message"])
	}

	status, _ := env.do(t, http.MethodGet, "/api/v1/orders/my", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestListOrders(t *testing.T) {
	env := setupApp(t)
	env.register(t, "alice")
	env.register(t, "bob")
	alice := env.login(t, "alice", "password123")
	bob := env.login(t, "bob", "password123")
	admin := env.login(t, adminUsername, adminPassword)

	for i := 0; i < 3; i++ {
		status, _ := env.do(t, http.MethodPost, "/api/v1/orders", alice, orderBody(line("p1", 1, 1)))
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := env.do(t, http.MethodPost, "/api/v1/orders", bob, orderBody(line("p2", 1, 2)))
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodGet, "/api/v1/orders/my", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["orders"], 1)

	status, body = env.do(t, http.MethodGet, "/api/v1/orders/my?limit=2", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["orders"], 2)
	pagination, _ := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 3, pagination["total"])
	assert.Equal(t, true, pagination["has_more"])

	status, body = env.do(t, http.MethodGet, "/api/v1/orders/all", alice, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Admin access required", body["message"])

	status, body = env.do(t, http.MethodGet, "/api/v1/orders/all", admin, nil)
	require.Equal(t, http.StatusOK, status)
	all, _ := body["orders"].([]interface{})
	require.Len(t, all, 4)
	owner, _ := all[0].(map[string]interface{})["user"].(map[string]interface{})
	assert.NotEmpty(t, owner["email"])
	assert.NotContains(t, owner, "password")
}

func TestUpdateOrderStatus(t *testing.T) {
	env := setupApp(t)
	env.register(t, "buyer")
	buyer := env.login(t, "buyer", "password123")
	admin := env.login(t, adminUsername, adminPassword)

	_, created := env.do(t, http.MethodPost, "/api/v1/orders", buyer, orderBody(line("p1", 2, 9.99)))
	orderID := created["order"].(map[string]interface{})["id"].(string)
	path := "/api/v1/orders/" + orderID + "/status"

	status, body := env.do(t, http.MethodPatch, path, admin, map[string]string{"status": "Completed"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Order status updated successfully", body["message"])
	order, _ := body["order"].(map[string]interface{})
	assert.Equal(t, string(models.StatusCompleted), order["status"])
	assert.InDelta(t, 19.98, order["total_amount"], 0.0001)

	status, body = env.do(t, http.MethodPatch, path, admin, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid status. Allowed: pending, completed, cancelled", body["message"])

	for _, padded := range []string{" pending", "completed\n", "\tcancelled "} {
		status, body = env.do(t, http.MethodPatch, path, admin, map[string]string{"status": padded})
		assert.Equal(t, http.StatusBadRequest, status, "%q", padded)
		assert.Equal(t, "Invalid status. Allowed: pending, completed, cancelled", body["message"])
	}

	status, body = env.do(t, http.MethodPatch, "/api/v1/orders/"+uuid.New().String()+"/status", admin, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Order not found", body["message"])

	status, _ = env.do(t, http.MethodPatch, path, buyer, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusForbidden, status)

	var stored models.Order
	require.NoError(t, env.db.First(&stored, "id = ?", orderID).Error)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}
