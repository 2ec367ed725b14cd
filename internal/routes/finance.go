package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tradexcel/backend/internal/finance"
)

// RegisterFinanceRoutes wires the stock-quote proxy endpoint.
func RegisterFinanceRoutes(r fiber.Router, h *finance.Handler) {
	group := r.Group("/finance")
	group.Get("/stock/:symbol", h.GetStock)
}
