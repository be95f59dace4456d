package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"Marketplace/internal/middleware"
	"Marketplace/internal/models"
	"Marketplace/internal/services"
)

type WithdrawalRequester interface {
	RequestWithdrawal(ctx context.Context, req services.WithdrawalRequest) (*models.Withdrawal, error)
}

type WithdrawalHandler struct {
	withdrawals WithdrawalRequester
}

func NewWithdrawalHandler(withdrawals WithdrawalRequester) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// RequestWithdrawal pays out part of the caller's affiliate balance
func (h *WithdrawalHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var req struct {
		UserID string          `json:"user_id" validate:"required"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	withdrawal, err := h.withdrawals.RequestWithdrawal(c.UserContext(), services.WithdrawalRequest{
		RequesterID: middleware.UserID(c),
		AffiliateID: req.UserID,
		Amount:      req.Amount,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"withdrawal": withdrawal,
	})
}
