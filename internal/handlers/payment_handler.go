package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"Marketplace/internal/services"
)

type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error)
}

type PaymentHandler struct {
	payments PaymentInitiator
}

func NewPaymentHandler(payments PaymentInitiator) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// InitiatePayment opens a pending transaction and returns the checkout URL
func (h *PaymentHandler) InitiatePayment(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	result, err := h.payments.InitiatePayment(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
