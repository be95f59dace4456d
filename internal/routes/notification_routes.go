package routes

import (
	"github.com/gofiber/fiber/v2"

	"Marketplace/internal/middleware"
)

func SetupNotificationRoutes(app *fiber.App, h Handlers) {
	notifications := app.Group("/api/notifications", middleware.Protected(h.JWTSecret))

	notifications.Get("/", h.Notification.GetNotifications)
	notifications.Get("/unread-count", h.Notification.GetUnreadCount)
	notifications.Patch("/read-all", h.Notification.MarkAllAsRead)
	notifications.Patch("/:id/read", h.Notification.MarkAsRead)
}
