package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"Marketplace/internal/metrics"
	"Marketplace/internal/services"
)

const signatureHeader = "x-paystack-signature"

type Settler interface {
	Settle(ctx context.Context, ev services.PaymentEvent) (*services.SettlementResult, error)
}

type TransferReconciler interface {
	Reconcile(ctx context.Context, ev services.TransferEvent) (bool, error)
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		TransferCode    string `json:"transfer_code"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// WebhookHandler receives Paystack event notifications. Once the signature
// checks out it always answers 200 so the processor does not redeliver
// events we have already dealt with or cannot act on.
type WebhookHandler struct {
	secret     string
	settler    Settler
	reconciler TransferReconciler
	log        *zap.Logger
}

func NewWebhookHandler(secret string, settler Settler, reconciler TransferReconciler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, settler: settler, reconciler: reconciler, log: log}
}

func (h *WebhookHandler) HandlePaystack(c *fiber.Ctx) error {
	body := c.Body()
	if !services.VerifySignature(h.secret, body, c.Get(signatureHeader)) {
		h.log.Warn("Rejected webhook with invalid signature", zap.String("ip", c.IP()))
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.log.Error("Failed to decode webhook payload", zap.Error(err))
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return c.JSON(fiber.Map{"message": "Malformed event ignored"})
	}

	log := h.log.With(zap.String("event", payload.Event), zap.String("reference", payload.Data.Reference))
	ctx := c.UserContext()

	switch payload.Event {
	case "charge.success":
		result, err := h.settler.Settle(ctx, services.PaymentEvent{
			Reference: payload.Data.Reference,
			Status:    payload.Data.Status,
		})
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "error").Inc()
			if errors.Is(err, services.ErrNotFound) {
				return c.JSON(fiber.Map{"message": "Transaction not found"})
			}
			log.Error("Settlement failed", zap.Error(err))
			return c.JSON(fiber.Map{"message": "Event received"})
		}
		metrics.WebhookEventsTotal.WithLabelValues(payload.Event, string(result.Outcome)).Inc()
		if result.Outcome == services.SettlementAlreadyProcessed {
			return c.JSON(fiber.Map{"message": "Transaction already processed"})
		}
		return c.JSON(fiber.Map{"message": "Webhook processed successfully"})

	case services.EventTransferSuccess, services.EventTransferFailed, services.EventTransferReversed:
		changed, err := h.reconciler.Reconcile(ctx, services.TransferEvent{
			Event:        payload.Event,
			Reference:    payload.Data.Reference,
			TransferCode: payload.Data.TransferCode,
			Reason:       payload.Data.GatewayResponse,
		})
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "error").Inc()
			if errors.Is(err, services.ErrNotFound) {
				log.Warn("Transfer event for unknown reference")
				return c.JSON(fiber.Map{"message": "Transfer not found"})
			}
			log.Error("Transfer reconciliation failed", zap.Error(err))
			return c.JSON(fiber.Map{"message": "Event received"})
		}
		if !changed {
			metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "already_processed").Inc()
			return c.JSON(fiber.Map{"message": "Transfer already processed"})
		}
		metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "reconciled").Inc()
		return c.JSON(fiber.Map{"message": "Webhook processed successfully"})
	}

	metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "ignored").Inc()
	return c.JSON(fiber.Map{"message": "Event ignored"})
}
