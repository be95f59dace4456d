package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Marketplace/internal/models"
	"Marketplace/internal/momo"
)

type PaymentStore interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	FindAffiliateByReferralCode(ctx context.Context, code string) (*models.User, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
}

type ChargeGateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type CheckoutRequest struct {
	ProductID       string `json:"product_id" validate:"required"`
	CustomerName    string `json:"customer_name" validate:"required,max=255"`
	CustomerEmail   string `json:"customer_email" validate:"required,email"`
	CustomerPhone   string `json:"customer_phone" validate:"required"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	PaymentNumber   string `json:"payment_number" validate:"required"`
	ReferralCode    string `json:"referral_code"`
}

type CheckoutResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	TransactionID    string `json:"transaction_id"`
}

// PaymentService opens pending transactions and starts their mobile-money charge.
type PaymentService struct {
	store       PaymentStore
	gateway     ChargeGateway
	callbackURL string
	log         *zap.Logger
	now         func() time.Time
}

func NewPaymentService(store PaymentStore, gateway ChargeGateway, callbackURL string, log *zap.Logger) *PaymentService {
	return &PaymentService{
		store:       store,
		gateway:     gateway,
		callbackURL: callbackURL,
		log:         log,
		now:         time.Now,
	}
}

func paymentReference(transactionID string, at time.Time) string {
	return fmt.Sprintf("txn_%s_%d", transactionID, at.UnixMilli())
}

func (s *PaymentService) InitiatePayment(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("product %s: %w", product.ID, ErrNotFound)
	}

	var affiliateID *string
	if req.ReferralCode != "" {
		affiliate, err := s.store.FindAffiliateByReferralCode(ctx, req.ReferralCode)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: invalid referral code", ErrValidation)
			}
			return nil, err
		}
		affiliateID = &affiliate.ID
	}

	route, err := momo.Resolve(req.PaymentNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mobile money number prefix", ErrValidation)
	}

	tx := &models.Transaction{
		ID:              uuid.NewString(),
		ProductID:       product.ID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Amount:          product.Price,
		PaymentStatus:   models.PaymentPending,
		AffiliateID:     affiliateID,
	}
	tx.PaymentReference = paymentReference(tx.ID, s.now())

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	log := s.log.With(zap.String("transaction_id", tx.ID), zap.String("reference", tx.PaymentReference))

	charge, err := s.gateway.InitializeCharge(ctx, ChargeRequest{
		Email:       req.CustomerEmail,
		AmountMinor: ToMinorUnits(tx.Amount),
		Reference:   tx.PaymentReference,
		CallbackURL: s.callbackURL,
		Phone:       route.LocalNumber,
		Provider:    route.Provider.ChargeCode,
	})
	if err != nil {
		log.Error("Payment initialization failed", zap.Error(err))
		return nil, err
	}

	log.Info("Payment initialized",
		zap.String("amount", tx.Amount.StringFixed(2)),
		zap.String("provider", route.Provider.Name),
		zap.Bool("referred", affiliateID != nil),
	)
	return &CheckoutResult{
		AuthorizationURL: charge.AuthorizationURL,
		Reference:        tx.PaymentReference,
		TransactionID:    tx.ID,
	}, nil
}
