package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"Marketplace/internal/momo"
)

// PayoutGateway is the two-step transfer API of the payment processor.
type PayoutGateway interface {
	CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// sendPayout registers the recipient's wallet and initiates the transfer.
// Either step failing leaves nothing to undo on our side.
func sendPayout(ctx context.Context, gateway PayoutGateway, name string, route momo.Route, amount decimal.Decimal, reason, reference string) (*TransferResult, error) {
	recipientCode, err := gateway.CreateTransferRecipient(ctx, RecipientRequest{
		Name:          name,
		AccountNumber: route.LocalNumber,
		BankCode:      route.Provider.BankCode,
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer recipient: %w", err)
	}

	result, err := gateway.InitiateTransfer(ctx, TransferRequest{
		AmountMinor:   ToMinorUnits(amount),
		RecipientCode: recipientCode,
		Reason:        reason,
		Reference:     reference,
	})
	if err != nil {
		return nil, fmt.Errorf("initiate transfer: %w", err)
	}
	return result, nil
}

// transferReference builds the idempotency reference sent with a transfer.
// Paystack accepts lowercase alphanumerics, '-' and '_' up to 50 characters.
func transferReference(kind, id string, attempt int) string {
	return fmt.Sprintf("%s_%s_%d", kind, strings.ReplaceAll(id, "-", ""), attempt)
}
