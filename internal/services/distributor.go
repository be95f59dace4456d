package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Marketplace/internal/ledger"
	"Marketplace/internal/metrics"
	"Marketplace/internal/models"
	"Marketplace/internal/momo"
)

type DistributorStore interface {
	CommissionsForTransaction(ctx context.Context, transactionID string, statuses ...models.CommissionStatus) ([]models.Commission, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	RecordPayoutAttempt(ctx context.Context, id string, attempts int, reference string) (bool, error)
	TransitionCommission(ctx context.Context, id string, from []models.CommissionStatus, u ledger.CommissionUpdate) (bool, error)
	TransactionIDsWithPayableCommissions(ctx context.Context) ([]string, error)
}

// SkippedCommission is a commission left payable by a distribution run.
type SkippedCommission struct {
	CommissionID string `json:"commission_id"`
	Reason       string `json:"reason"`
}

type DistributionReport struct {
	TransactionID string              `json:"transaction_id"`
	Considered    int                 `json:"considered"`
	Paid          int                 `json:"paid"`
	Submitted     int                 `json:"submitted"`
	Skipped       []SkippedCommission `json:"skipped"`
}

// Distributor turns payable commissions into mobile-money transfers.
//
// Each commission is handled on its own: a missing recipient, an unknown
// phone prefix or a failed gateway call skips that commission and leaves it
// payable for a later run. Running it again over the same transaction only
// touches rows that are still payable.
type Distributor struct {
	store    DistributorStore
	gateway  PayoutGateway
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewDistributor(store DistributorStore, gateway PayoutGateway, notifier Notifier, log *zap.Logger) *Distributor {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Distributor{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Distribute pays out every payable commission of one transaction. It only
// fails when the commissions cannot be loaded at all.
func (d *Distributor) Distribute(ctx context.Context, transactionID string) (*DistributionReport, error) {
	commissions, err := d.store.CommissionsForTransaction(ctx, transactionID, models.PayableCommissionStatuses...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch commissions for transaction %s: %v", ErrUpstream, transactionID, err)
	}

	report := &DistributionReport{
		TransactionID: transactionID,
		Considered:    len(commissions),
		Skipped:       []SkippedCommission{},
	}
	if len(commissions) == 0 {
		d.log.Info("No pending commissions to distribute", zap.String("transaction_id", transactionID))
		return report, nil
	}

	for i := range commissions {
		c := &commissions[i]
		status, reason := d.payCommission(ctx, c)
		switch status {
		case models.CommissionPaid:
			report.Paid++
		case models.CommissionSubmitted:
			report.Submitted++
		default:
			report.Skipped = append(report.Skipped, SkippedCommission{CommissionID: c.ID, Reason: reason})
		}
	}

	d.log.Info("Commission distribution processed",
		zap.String("transaction_id", transactionID),
		zap.Int("considered", report.Considered),
		zap.Int("paid", report.Paid),
		zap.Int("submitted", report.Submitted),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// payCommission returns the status the commission ended in, or "" with a
// reason when it was skipped.
func (d *Distributor) payCommission(ctx context.Context, c *models.Commission) (models.CommissionStatus, string) {
	log := d.log.With(
		zap.String("commission_id", c.ID),
		zap.String("transaction_id", c.TransactionID),
		zap.String("recipient_id", c.RecipientID),
	)

	if !c.Amount.IsPositive() {
		// Nothing to transfer; rows written before zero shares were stored paid.
		if _, err := d.store.TransitionCommission(ctx, c.ID, models.PayableCommissionStatuses, ledger.CommissionUpdate{
			To: models.CommissionPaid,
			At: d.now(),
		}); err != nil {
			log.Error("Failed to settle zero-amount commission", zap.Error(err))
			return "", "store unavailable"
		}
		metrics.RecordPayout("commission", "zero_amount")
		return models.CommissionPaid, ""
	}

	recipient, err := d.store.GetUser(ctx, c.RecipientID)
	if err != nil {
		log.Error("Recipient not found, skipping commission", zap.Error(err))
		metrics.RecordPayout("commission", "skipped_recipient")
		return "", "recipient not found"
	}

	route, err := momo.Resolve(recipient.Phone)
	if err != nil {
		log.Error("Unsupported payout number, skipping commission", zap.String("phone", recipient.Phone), zap.Error(err))
		metrics.RecordPayout("commission", "skipped_route")
		return "", "unsupported phone number"
	}

	reference := payoutReference(c)
	claimed, err := d.store.RecordPayoutAttempt(ctx, c.ID, c.PayoutAttempts, reference)
	if err != nil {
		log.Error("Failed to record payout attempt", zap.Error(err))
		metrics.RecordPayout("commission", "skipped_store")
		return "", "store unavailable"
	}
	if !claimed {
		log.Warn("Commission claimed by a concurrent distribution, skipping")
		metrics.RecordPayout("commission", "skipped_claimed")
		return "", "claimed by another run"
	}

	result, err := sendPayout(ctx, d.gateway, recipient.FullName, route, c.Amount, "Commission payment", reference)
	if err != nil {
		log.Error("Payout failed, commission left pending", zap.String("reference", reference), zap.Error(err))
		metrics.RecordPayout("commission", "failed")
		return "", "payout failed"
	}

	to := models.CommissionSubmitted
	if result.Settled() {
		to = models.CommissionPaid
	}
	moved, err := d.store.TransitionCommission(ctx, c.ID, []models.CommissionStatus{models.CommissionPending}, ledger.CommissionUpdate{
		To:                to,
		TransferReference: reference,
		TransferCode:      result.TransferCode,
		At:                d.now(),
	})
	if err != nil || !moved {
		// The transfer is out. The row stays pending under the same reference,
		// so a retry is deduplicated by the processor and the transfer webhook
		// settles it.
		log.Error("Transfer initiated but commission status not updated",
			zap.String("reference", reference),
			zap.String("transfer_code", result.TransferCode),
			zap.Bool("row_moved", moved),
			zap.Error(err),
		)
		metrics.RecordPayout("commission", "unrecorded")
		return to, ""
	}

	metrics.RecordPayout("commission", string(to))
	log.Info("Commission payout initiated",
		zap.String("status", string(to)),
		zap.String("reference", reference),
		zap.String("transfer_code", result.TransferCode),
		zap.String("route_table", route.TableVersion),
	)

	if to == models.CommissionPaid {
		c.Status = to
		d.notifier.CommissionPaid(ctx, recipient, c)
	}
	return to, ""
}

// payoutReference picks the transfer reference for the next attempt. A
// pending row that already carries a reference may have a transfer in flight
// (a timed-out call, or a status write that was lost), so it is resent under
// that reference and the processor rejects the duplicate. Only a failed row,
// whose transfer is known not to have paid, gets a fresh reference.
func payoutReference(c *models.Commission) string {
	if c.Status == models.CommissionPending && c.TransferReference != nil && *c.TransferReference != "" {
		return *c.TransferReference
	}
	return transferReference("com", c.ID, c.PayoutAttempts+1)
}

type SweepReport struct {
	Transactions int                   `json:"transactions"`
	Reports      []*DistributionReport `json:"reports"`
	Failed       []string              `json:"failed"`
}

// Sweep runs Distribute over every transaction that still has payable
// commissions. It is the external retry trigger.
func (d *Distributor) Sweep(ctx context.Context) (*SweepReport, error) {
	ids, err := d.store.TransactionIDsWithPayableCommissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list transactions with payable commissions: %v", ErrUpstream, err)
	}

	sweep := &SweepReport{
		Transactions: len(ids),
		Reports:      make([]*DistributionReport, 0, len(ids)),
		Failed:       []string{},
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sweep, err
		}
		report, err := d.Distribute(ctx, id)
		if err != nil {
			d.log.Error("Distribution failed during sweep", zap.String("transaction_id", id), zap.Error(err))
			sweep.Failed = append(sweep.Failed, id)
			continue
		}
		sweep.Reports = append(sweep.Reports, report)
	}
	return sweep, nil
}
