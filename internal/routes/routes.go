package routes

import (
	"github.com/gofiber/fiber/v2"

	"Marketplace/internal/handlers"
	"Marketplace/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Webhook      *handlers.WebhookHandler
	Payment      *handlers.PaymentHandler
	Withdrawal   *handlers.WithdrawalHandler
	Stats        *handlers.StatsHandler
	Notification *handlers.NotificationHandler
	Admin        *handlers.AdminHandler

	JWTSecret string
	Users     middleware.UserLookup
}

func SetupRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api")

	// Paystack calls this; it authenticates by signature, not bearer token
	api.Post("/webhooks/paystack", h.Webhook.HandlePaystack)

	// Checkout
	api.Post("/payments/initiate", h.Payment.InitiatePayment)

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Marketplace API v1.0",
			"status":  "running",
		})
	})

	SetupAffiliateRoutes(app, h)
	SetupNotificationRoutes(app, h)
	SetupAdminRoutes(app, h)
}
