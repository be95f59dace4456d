package routes

import (
	"github.com/gofiber/fiber/v2"

	"Marketplace/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App, h Handlers) {
	admin := app.Group("/api/admin", middleware.Protected(h.JWTSecret), middleware.AdminOnly(h.Users))

	// Withdrawal management
	admin.Get("/withdrawals/pending", h.Admin.GetPendingWithdrawals)
	admin.Get("/withdrawals/stats", h.Admin.GetWithdrawalStats)
	admin.Get("/withdrawals/:id", h.Admin.GetWithdrawalByID)
	admin.Post("/withdrawals/:id/complete", h.Admin.CompleteManualWithdrawal)
	admin.Post("/withdrawals/:id/fail", h.Admin.FailManualWithdrawal)

	// Commission payouts
	admin.Post("/commissions/sweep", h.Admin.SweepCommissions)
	admin.Post("/transactions/:id/distribute", h.Admin.DistributeTransaction)
	admin.Get("/transactions/uncommissioned", h.Admin.GetUncommissionedTransactions)
}
