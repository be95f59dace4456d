package handlers

import (
	"github.com/gofiber/fiber/v2"

	"Marketplace/internal/middleware"
	"Marketplace/internal/services"
)

type StatsHandler struct {
	stats *services.StatsService
}

func NewStatsHandler(stats *services.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// GetAffiliateStats returns earnings, referral sales and withdrawal history
func (h *StatsHandler) GetAffiliateStats(c *fiber.Ctx) error {
	stats, err := h.stats.AffiliateStats(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// GetSellerStats returns product and sales figures for a seller
func (h *StatsHandler) GetSellerStats(c *fiber.Ctx) error {
	stats, err := h.stats.SellerStats(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
