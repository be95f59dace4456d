package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Marketplace/internal/ledger"
	"Marketplace/internal/metrics"
	"Marketplace/internal/models"
	"Marketplace/internal/momo"
)

type WithdrawalStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ReserveWithdrawal(ctx context.Context, affiliateID string, amount decimal.Decimal) (*models.Withdrawal, ledger.Balance, error)
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	TransitionWithdrawal(ctx context.Context, id string, u ledger.WithdrawalUpdate) (bool, error)
}

type WithdrawalRequest struct {
	RequesterID string
	AffiliateID string
	Amount      decimal.Decimal
}

type WithdrawalService struct {
	store    WithdrawalStore
	gateway  PayoutGateway
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewWithdrawalService(store WithdrawalStore, gateway PayoutGateway, notifier Notifier, log *zap.Logger) *WithdrawalService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &WithdrawalService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// RequestWithdrawal reserves amount from the affiliate's balance and pays it
// out immediately. A payout that cannot be confirmed leaves the withdrawal
// pending for reconciliation or manual processing; that is not an error.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	if req.RequesterID == "" || req.RequesterID != req.AffiliateID {
		return nil, fmt.Errorf("%w: cannot withdraw on behalf of another user", ErrForbidden)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount cannot have more than 2 decimal places", ErrValidation)
	}
	if req.Amount.LessThan(models.MinimumWithdrawal) {
		return nil, fmt.Errorf("%w: minimum withdrawal amount is %s GHS", ErrValidation, models.MinimumWithdrawal.String())
	}

	affiliate, err := s.store.GetUser(ctx, req.AffiliateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: user is not an affiliate", ErrForbidden)
		}
		return nil, err
	}
	if !affiliate.IsAffiliate() {
		return nil, fmt.Errorf("%w: user is not an affiliate", ErrForbidden)
	}

	route, err := momo.Resolve(affiliate.Phone)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported phone number for mobile money", ErrValidation)
	}

	log := s.log.With(zap.String("affiliate_id", affiliate.ID), zap.String("amount", req.Amount.StringFixed(2)))

	withdrawal, balance, err := s.store.ReserveWithdrawal(ctx, affiliate.ID, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			log.Info("Withdrawal rejected", zap.String("available", balance.Available().StringFixed(2)))
			return nil, err
		}
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	withdrawal.Affiliate = affiliate
	log = log.With(zap.String("withdrawal_id", withdrawal.ID))
	log.Info("Withdrawal reserved")

	reference := transferReference("wdr", withdrawal.ID, 1)
	result, err := sendPayout(ctx, s.gateway, affiliate.FullName, route, withdrawal.Amount, "Affiliate withdrawal", reference)
	if err != nil {
		log.Error("Withdrawal transfer failed, kept pending for manual processing", zap.Error(err))
		metrics.RecordPayout("withdrawal", "failed")
		return withdrawal, nil
	}

	update := ledger.WithdrawalUpdate{
		To:                models.WithdrawalPending,
		TransferReference: reference,
		TransferCode:      result.TransferCode,
	}
	if result.Settled() {
		update.To = models.WithdrawalCompleted
		update.At = s.now()
	}
	moved, err := s.store.TransitionWithdrawal(ctx, withdrawal.ID, update)
	if err != nil || !moved {
		log.Error("Transfer initiated but withdrawal not updated",
			zap.String("reference", reference),
			zap.Bool("row_moved", moved),
			zap.Error(err),
		)
		metrics.RecordPayout("withdrawal", "unrecorded")
		return withdrawal, nil
	}

	withdrawal.Status = update.To
	withdrawal.TransferReference = &reference
	withdrawal.TransferCode = result.TransferCode
	if update.To == models.WithdrawalCompleted {
		at := update.At
		withdrawal.CompletedAt = &at
		metrics.RecordPayout("withdrawal", "completed")
		log.Info("Withdrawal completed", zap.String("reference", reference))
		s.notifier.WithdrawalCompleted(ctx, affiliate, withdrawal)
	} else {
		metrics.RecordPayout("withdrawal", "submitted")
		log.Info("Withdrawal transfer submitted", zap.String("reference", reference))
	}
	return withdrawal, nil
}

// CompleteManually marks a pending withdrawal completed after an admin paid
// it outside the automatic flow.
func (s *WithdrawalService) CompleteManually(ctx context.Context, id, transferReference, notes string) (*models.Withdrawal, error) {
	return s.finish(ctx, id, ledger.WithdrawalUpdate{
		To:                models.WithdrawalCompleted,
		TransferReference: transferReference,
		Notes:             notes,
		At:                s.now(),
	})
}

// FailManually marks a pending withdrawal failed, releasing its reserved amount.
func (s *WithdrawalService) FailManually(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	return s.finish(ctx, id, ledger.WithdrawalUpdate{
		To:    models.WithdrawalFailed,
		Notes: reason,
	})
}

func (s *WithdrawalService) finish(ctx context.Context, id string, u ledger.WithdrawalUpdate) (*models.Withdrawal, error) {
	withdrawal, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if withdrawal.Status != models.WithdrawalPending {
		return nil, fmt.Errorf("%w: withdrawal is already %s", ErrConflict, withdrawal.Status)
	}

	moved, err := s.store.TransitionWithdrawal(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: withdrawal was processed concurrently", ErrConflict)
	}

	updated, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("Withdrawal processed manually",
		zap.String("withdrawal_id", id),
		zap.String("status", string(updated.Status)),
	)

	if updated.Affiliate != nil {
		switch updated.Status {
		case models.WithdrawalCompleted:
			s.notifier.WithdrawalCompleted(ctx, updated.Affiliate, updated)
		case models.WithdrawalFailed:
			s.notifier.WithdrawalFailed(ctx, updated.Affiliate, updated, u.Notes)
		}
	}
	return updated, nil
}
