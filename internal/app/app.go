package app

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewApp wires repositories, services and handlers into a Fiber app.
// publisher may be nil, in which case order events are not published.
func NewApp(cfg *config.Config, db *gorm.DB, publisher services.EventPublisher, log *zap.Logger) (*fiber.App, *services.AuthService, error) {
	// --- Repositories ---
	orderRepo := repositories.NewGORMOrderRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	cartRepo := repositories.NewGORMCartRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	// --- Services ---
	authService := services.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL, log.Named("auth"))
	orderService := services.NewOrderService(
		orderRepo,
		productRepo,
		cartRepo,
		publisher,
		cfg.Order,
		log.Named("orders"),
		services.WithTransactor(repositories.NewGORMTransactor(db)),
	)

	if cfg.Admin.SeedAdmin() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := authService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return nil, nil, fmt.Errorf("failed to seed admin account: %w", err)
		}
	}

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService, log.Named("http"))
	orderHandler := handlers.NewOrderHandler(orderService, log.Named("http"))

	app := fiber.New(fiber.Config{
		AppName: "storefront",
	})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		dbStatus := "connected"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			dbStatus = "unreachable"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"events":   publisher != nil,
		})
	})

	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	authHandler.RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protected := apiV1.Group("", middleware.AuthRequired(authService, log.Named("http")))
	orderHandler.RegisterRoutes(protected)

	return app, authService, nil
}
