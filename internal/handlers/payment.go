package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/newport/internal/services"
	"github.com/example/newport/internal/utils"
)

// PaymentHandler serves resident-facing payment endpoints.
type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePayment starts a Payme checkout for one of the caller's apartments.
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	var req services.CreatePaymentInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.payments.CreatePayment(c.UserContext(), userID, req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(res)
}

// History lists the caller's payments, optionally for one apartment.
func (h *PaymentHandler) History(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	pg := utils.ParsePagination(c, services.DefaultHistoryLimit, services.MaxHistoryLimit)
	payments, err := h.payments.PaymentHistory(c.UserContext(), userID, c.Query("apartmentId"), pg.Limit, pg.Offset)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"payments": payments,
		"page":     pg.Page,
		"limit":    pg.Limit,
	})
}
