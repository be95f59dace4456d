package routes

import (
	"github.com/gofiber/fiber/v2"

	"Marketplace/internal/middleware"
)

func SetupAffiliateRoutes(app *fiber.App, h Handlers) {
	auth := middleware.Protected(h.JWTSecret)

	// Withdrawal
	app.Post("/api/withdrawals", auth, h.Withdrawal.RequestWithdrawal)

	// Dashboards
	app.Get("/api/affiliates/:id/stats", auth, h.Stats.GetAffiliateStats)
	app.Get("/api/sellers/:id/stats", auth, h.Stats.GetSellerStats)
}
