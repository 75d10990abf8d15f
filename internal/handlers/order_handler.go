package handlers

import (
	"errors"

	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the order routes. router must already require authentication.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/my", h.HandleGetMyOrders)
	orderRoutes.Get("/all", middleware.AdminRequired(), h.HandleGetAllOrders)
	orderRoutes.Patch("/:orderId/status", middleware.AdminRequired(), h.HandleUpdateOrderStatus)
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Items           []services.OrderItemInput `json:"items"`
	ShippingAddress string                    `json:"shipping_address"`
	ShippingCity    string                    `json:"shipping_city"`
	ShippingState   string                    `json:"shipping_state"`
	ShippingZipCode string                    `json:"shipping_zip_code"`
	ShippingCountry string                    `json:"shipping_country"`
	ShippingPhone   string                    `json:"shipping_phone"`
}

// UpdateStatusRequest is the body of PATCH /orders/:orderId/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// HandleCreateOrder creates a new order for the caller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFromCtx(c)
	if !ok {
		return h.writeError(c, services.ErrUnauthenticated, "")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("invalid order body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	summary, err := h.service.CreateOrder(c.UserContext(), caller, services.CreateOrderInput{
		Items: req.Items,
		Shipping: services.ShippingInfo{
			Address: req.ShippingAddress,
			City:    req.ShippingCity,
			State:   req.ShippingState,
			ZipCode: req.ShippingZipCode,
			Country: req.ShippingCountry,
			Phone:   req.ShippingPhone,
		},
	})
	if err != nil {
		return h.writeError(c, err, "Failed to create order")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Order created successfully",
		"order":   summary,
	})
}

// HandleGetMyOrders lists the caller's orders, newest first.
func (h *OrderHandler) HandleGetMyOrders(c *fiber.Ctx) error {
	return h.listOrders(c, services.ScopeMine)
}

// HandleGetAllOrders lists every order with its owner, newest first.
func (h *OrderHandler) HandleGetAllOrders(c *fiber.Ctx) error {
	return h.listOrders(c, services.ScopeAll)
}

func (h *OrderHandler) listOrders(c *fiber.Ctx, scope services.Scope) error {
	caller, ok := middleware.CallerFromCtx(c)
	if !ok {
		return h.writeError(c, services.ErrUnauthenticated, "")
	}

	page := services.Page{
		Number: c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 0),
	}
	result, err := h.service.GetOrders(c.UserContext(), caller, scope, page)
	if err != nil {
		return h.writeError(c, err, "Failed to fetch orders")
	}

	return c.JSON(fiber.Map{
		"orders": result.Orders,
		"pagination": fiber.Map{
			"page":     result.Page,
			"limit":    result.Limit,
			"total":    result.Total,
			"has_more": result.HasMore,
		},
	})
}

// HandleUpdateOrderStatus sets the status of an order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFromCtx(c)
	if !ok {
		return h.writeError(c, services.ErrUnauthenticated, "")
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body for status update",
		})
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), caller, c.Params("orderId"), req.Status)
	if err != nil {
		return h.writeError(c, err, "Failed to update order status")
	}

	return c.JSON(fiber.Map{
		"message": "Order status updated successfully",
		"order":   order,
	})
}

// writeError maps a service error onto a status code and a client-safe message.
func (h *OrderHandler) writeError(c *fiber.Ctx, err error, fallback string) error {
	if ve, ok := services.IsValidation(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ve.Message})
	}

	status, message := fiber.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		status, message = fiber.StatusUnauthorized, "Authentication required"
	case errors.Is(err, services.ErrForbidden):
		status, message = fiber.StatusForbidden, "Admin access required"
	case errors.Is(err, services.ErrNotFound):
		status, message = fiber.StatusNotFound, "Order not found"
	case errors.Is(err, services.ErrInsufficientStock):
		status, message = fiber.StatusConflict, "Insufficient stock"
	case errors.Is(err, services.ErrInvalidTransition):
		status, message = fiber.StatusConflict, "Invalid status transition"
	case errors.Is(err, services.ErrOrderItems):
		message = "Failed to create order items"
	}

	if status >= fiber.StatusInternalServerError {
		h.logger.Error("order request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"message": message})
}
