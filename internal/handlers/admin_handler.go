package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Marketplace/internal/ledger"
	"Marketplace/internal/middleware"
	"Marketplace/internal/models"
	"Marketplace/internal/services"
)

type AdminStore interface {
	PendingWithdrawals(ctx context.Context, offset, limit int) ([]models.Withdrawal, int64, error)
	WithdrawalStats(ctx context.Context) (ledger.WithdrawalStats, error)
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UncommissionedTransactions(ctx context.Context) ([]models.Transaction, error)
}

type WithdrawalProcessor interface {
	CompleteManually(ctx context.Context, id, transferReference, notes string) (*models.Withdrawal, error)
	FailManually(ctx context.Context, id, reason string) (*models.Withdrawal, error)
}

type CommissionSweeper interface {
	Distribute(ctx context.Context, transactionID string) (*services.DistributionReport, error)
	Sweep(ctx context.Context) (*services.SweepReport, error)
}

type AdminHandler struct {
	store       AdminStore
	withdrawals WithdrawalProcessor
	distributor CommissionSweeper
	log         *zap.Logger
}

func NewAdminHandler(store AdminStore, withdrawals WithdrawalProcessor, distributor CommissionSweeper, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:       store,
		withdrawals: withdrawals,
		distributor: distributor,
		log:         log,
	}
}

// GetPendingWithdrawals retrieves all pending withdrawals for manual processing
func (h *AdminHandler) GetPendingWithdrawals(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	withdrawals, total, err := h.store.PendingWithdrawals(c.UserContext(), offset, limit)
	if err != nil {
		h.log.Error("Failed to list pending withdrawals", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve pending withdrawals",
		})
	}

	pageAmount := decimal.Zero
	for _, w := range withdrawals {
		pageAmount = pageAmount.Add(w.Amount)
	}

	return c.JSON(fiber.Map{
		"pending_withdrawals": withdrawals,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
		"summary": fiber.Map{
			"total_count":  total,
			"total_amount": pageAmount,
		},
		"note": "Pay these out manually, then mark them completed",
	})
}

// GetWithdrawalByID retrieves a specific withdrawal with affiliate details
func (h *AdminHandler) GetWithdrawalByID(c *fiber.Ctx) error {
	withdrawal, err := h.store.GetWithdrawal(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{"withdrawal": withdrawal}
	if a := withdrawal.Affiliate; a != nil {
		resp["user"] = fiber.Map{
			"id":        a.ID,
			"full_name": a.FullName,
			"email":     a.Email,
			"phone":     a.Phone,
		}
	}
	return c.JSON(resp)
}

// CompleteManualWithdrawal marks a withdrawal as completed after manual processing
func (h *AdminHandler) CompleteManualWithdrawal(c *fiber.Ctx) error {
	var req struct {
		TransferReference string `json:"transfer_reference"`
		Notes             string `json:"notes"`
	}
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	withdrawal, err := h.withdrawals.CompleteManually(c.UserContext(), c.Params("id"), req.TransferReference, req.Notes)
	if err != nil {
		return respondError(c, err)
	}

	h.log.Info("Admin completed withdrawal",
		zap.String("admin_id", middleware.UserID(c)),
		zap.String("withdrawal_id", withdrawal.ID),
		zap.String("amount", withdrawal.Amount.StringFixed(2)),
	)
	return c.JSON(fiber.Map{
		"message":    "Withdrawal marked as completed successfully",
		"withdrawal": withdrawal,
	})
}

// FailManualWithdrawal marks a withdrawal as failed, releasing the reserved amount
func (h *AdminHandler) FailManualWithdrawal(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason" validate:"required"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	withdrawal, err := h.withdrawals.FailManually(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}

	h.log.Warn("Admin failed withdrawal",
		zap.String("admin_id", middleware.UserID(c)),
		zap.String("withdrawal_id", withdrawal.ID),
		zap.String("reason", req.Reason),
	)
	return c.JSON(fiber.Map{
		"message":    "Withdrawal marked as failed and amount released to the affiliate balance",
		"withdrawal": withdrawal,
	})
}

// GetWithdrawalStats retrieves withdrawal statistics
func (h *AdminHandler) GetWithdrawalStats(c *fiber.Ctx) error {
	stats, err := h.store.WithdrawalStats(c.UserContext())
	if err != nil {
		h.log.Error("Failed to compute withdrawal stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve withdrawal stats",
		})
	}
	return c.JSON(fiber.Map{
		"stats": stats,
	})
}

// DistributeTransaction re-runs commission payouts for one transaction
func (h *AdminHandler) DistributeTransaction(c *fiber.Ctx) error {
	tx, err := h.store.GetTransaction(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !tx.IsCompleted() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Transaction is not completed",
			"status": tx.PaymentStatus,
		})
	}

	report, err := h.distributor.Distribute(c.UserContext(), tx.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Commission distribution processed",
		"report":  report,
	})
}

// SweepCommissions retries every transaction with payable commissions
func (h *AdminHandler) SweepCommissions(c *fiber.Ctx) error {
	report, err := h.distributor.Sweep(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Commission sweep processed",
		"report":  report,
	})
}

// GetUncommissionedTransactions lists completed sales that have no commission rows
func (h *AdminHandler) GetUncommissionedTransactions(c *fiber.Ctx) error {
	txs, err := h.store.UncommissionedTransactions(c.UserContext())
	if err != nil {
		h.log.Error("Failed to list uncommissioned transactions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve transactions",
		})
	}
	return c.JSON(fiber.Map{
		"transactions": txs,
		"count":        len(txs),
	})
}
