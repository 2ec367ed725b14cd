package finance

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tradexcel/backend/internal/apperr"
)

// Handler exposes the stock-quote endpoint.
type Handler struct {
	quoter Quoter
}

// NewHandler builds a finance HTTP handler.
func NewHandler(quoter Quoter) *Handler {
	return &Handler{quoter: quoter}
}

// GetStock returns the reformatted quote for the symbol path parameter.
func (h *Handler) GetStock(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	if symbol == "" {
		return apperr.Validation("symbol is required")
	}

	quote, err := h.quoter.Quote(c.UserContext(), symbol)
	if err != nil {
		return err
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":  http.StatusOK,
		"data":    quote,
		"message": "Stock data fetched successfully",
	})
}
