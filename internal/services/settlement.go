package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Marketplace/internal/metrics"
	"Marketplace/internal/models"
)

type SettlementStore interface {
	FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	CompleteTransaction(ctx context.Context, id string, at time.Time) (bool, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	FindAdmin(ctx context.Context) (*models.User, error)
	InsertCommissions(ctx context.Context, commissions []models.Commission) error
}

// CommissionDistributor is the part of the Distributor the engine drives.
type CommissionDistributor interface {
	Distribute(ctx context.Context, transactionID string) (*DistributionReport, error)
}

// PaymentEvent is a verified charge notification from the processor.
type PaymentEvent struct {
	Reference string
	Status    string
}

type SettlementOutcome string

const (
	SettlementSettled          SettlementOutcome = "settled"
	SettlementAlreadyProcessed SettlementOutcome = "already_processed"
	SettlementIgnored          SettlementOutcome = "ignored"
)

type SettlementResult struct {
	Outcome       SettlementOutcome
	TransactionID string
	Commissions   []models.Commission
	Distribution  *DistributionReport
}

// SettlementEngine completes paid transactions and records their commission
// split. A transaction is completed at most once no matter how many times
// the processor delivers the same event.
type SettlementEngine struct {
	store       SettlementStore
	distributor CommissionDistributor
	log         *zap.Logger
	now         func() time.Time
}

func NewSettlementEngine(store SettlementStore, distributor CommissionDistributor, log *zap.Logger) *SettlementEngine {
	return &SettlementEngine{
		store:       store,
		distributor: distributor,
		log:         log,
		now:         time.Now,
	}
}

// Settle processes one payment event.
//
// Errors wrapping ErrUncommissioned mean the transaction was completed but
// its commissions could not be written; those need manual reconciliation.
func (e *SettlementEngine) Settle(ctx context.Context, ev PaymentEvent) (*SettlementResult, error) {
	log := e.log.With(zap.String("reference", ev.Reference), zap.String("status", ev.Status))

	tx, err := e.store.FindTransactionByReference(ctx, ev.Reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("Payment event for unknown transaction")
			metrics.RecordSettlement("not_found")
		}
		return nil, err
	}
	log = log.With(zap.String("transaction_id", tx.ID))

	if tx.IsCompleted() {
		log.Info("Transaction already processed")
		metrics.RecordSettlement(string(SettlementAlreadyProcessed))
		return &SettlementResult{Outcome: SettlementAlreadyProcessed, TransactionID: tx.ID}, nil
	}

	if ev.Status != "success" {
		log.Info("Payment not successful, nothing to settle")
		metrics.RecordSettlement(string(SettlementIgnored))
		return &SettlementResult{Outcome: SettlementIgnored, TransactionID: tx.ID}, nil
	}

	won, err := e.store.CompleteTransaction(ctx, tx.ID, e.now())
	if err != nil {
		metrics.RecordSettlement("error")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !won {
		// A concurrent delivery completed it between our read and the update.
		log.Info("Transaction completed by a concurrent delivery")
		metrics.RecordSettlement(string(SettlementAlreadyProcessed))
		return &SettlementResult{Outcome: SettlementAlreadyProcessed, TransactionID: tx.ID}, nil
	}
	log.Info("Transaction completed")

	product, err := e.store.GetProduct(ctx, tx.ProductID)
	if err != nil {
		log.Error("Completed transaction has no resolvable product, commissions not recorded", zap.Error(err))
		metrics.RecordSettlement("uncommissioned")
		return nil, fmt.Errorf("%w: %w", ErrUncommissioned, err)
	}

	admin, err := e.store.FindAdmin(ctx)
	if err != nil {
		log.Error("No admin user configured, commissions not recorded", zap.Error(err))
		metrics.RecordSettlement("uncommissioned")
		return nil, fmt.Errorf("%w: %w: no admin user: %v", ErrUncommissioned, ErrConfiguration, err)
	}

	shares := ComputeSplit(tx.Amount, product.SellerID, admin.ID, tx.AffiliateID)
	commissions := sharesToCommissions(tx.ID, shares, e.now())
	if err := e.store.InsertCommissions(ctx, commissions); err != nil {
		log.Error("Failed to insert commissions, transaction left uncommissioned", zap.Error(err))
		metrics.RecordSettlement("uncommissioned")
		return nil, fmt.Errorf("%w: %v", ErrUncommissioned, err)
	}

	fields := []zap.Field{zap.String("amount", tx.Amount.StringFixed(2))}
	for _, c := range commissions {
		fields = append(fields, zap.String(string(c.CommissionType), c.Amount.StringFixed(2)))
	}
	log.Info("Commissions recorded", fields...)
	metrics.RecordSettlement(string(SettlementSettled))

	result := &SettlementResult{
		Outcome:       SettlementSettled,
		TransactionID: tx.ID,
		Commissions:   commissions,
	}

	report, err := e.distributor.Distribute(ctx, tx.ID)
	if err != nil {
		log.Error("Commission distribution failed, commissions stay payable", zap.Error(err))
		return result, nil
	}
	result.Distribution = report
	return result, nil
}
