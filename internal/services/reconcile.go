package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"Marketplace/internal/ledger"
	"Marketplace/internal/metrics"
	"Marketplace/internal/models"
)

const (
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
)

type ReconcileStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindCommissionByTransferReference(ctx context.Context, reference string) (*models.Commission, error)
	TransitionCommission(ctx context.Context, id string, from []models.CommissionStatus, u ledger.CommissionUpdate) (bool, error)
	FindWithdrawalByTransferReference(ctx context.Context, reference string) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	TransitionWithdrawal(ctx context.Context, id string, u ledger.WithdrawalUpdate) (bool, error)
}

// TransferEvent is a verified transfer notification.
type TransferEvent struct {
	Event        string
	Reference    string
	TransferCode string
	Reason       string
}

// Reconciler applies the final outcome of asynchronous transfers to the
// commission or withdrawal that initiated them.
type Reconciler struct {
	store    ReconcileStore
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewReconciler(store ReconcileStore, notifier Notifier, log *zap.Logger) *Reconciler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Reconciler{store: store, notifier: notifier, log: log, now: time.Now}
}

// Reconcile reports whether a row changed. Replayed events are no-ops.
func (r *Reconciler) Reconcile(ctx context.Context, ev TransferEvent) (bool, error) {
	if ev.Reference == "" {
		return false, fmt.Errorf("%w: transfer event without reference", ErrValidation)
	}
	switch {
	case strings.HasPrefix(ev.Reference, "com_"):
		return r.reconcileCommission(ctx, ev)
	case strings.HasPrefix(ev.Reference, "wdr_"):
		return r.reconcileWithdrawal(ctx, ev)
	}

	if changed, err := r.reconcileCommission(ctx, ev); !errors.Is(err, ErrNotFound) {
		return changed, err
	}
	return r.reconcileWithdrawal(ctx, ev)
}

func failureReason(ev TransferEvent) string {
	if ev.Reason != "" {
		return ev.Reason
	}
	return strings.TrimPrefix(ev.Event, "transfer.")
}

func (r *Reconciler) reconcileCommission(ctx context.Context, ev TransferEvent) (bool, error) {
	c, err := r.store.FindCommissionByTransferReference(ctx, ev.Reference)
	if err != nil {
		return false, err
	}
	log := r.log.With(zap.String("commission_id", c.ID), zap.String("event", ev.Event), zap.String("reference", ev.Reference))

	inFlight := []models.CommissionStatus{models.CommissionPending, models.CommissionSubmitted}
	var (
		from []models.CommissionStatus
		u    = ledger.CommissionUpdate{TransferCode: ev.TransferCode, At: r.now()}
	)
	switch ev.Event {
	case EventTransferSuccess:
		from, u.To = inFlight, models.CommissionPaid
	case EventTransferFailed:
		from, u.To, u.FailureReason = inFlight, models.CommissionFailed, failureReason(ev)
	case EventTransferReversed:
		from = append(inFlight, models.CommissionPaid)
		u.To, u.FailureReason = models.CommissionFailed, failureReason(ev)
	default:
		return false, fmt.Errorf("%w: unsupported transfer event %q", ErrValidation, ev.Event)
	}

	moved, err := r.store.TransitionCommission(ctx, c.ID, from, u)
	if err != nil {
		return false, err
	}
	if !moved {
		log.Info("Commission already reconciled", zap.String("status", string(c.Status)))
		return false, nil
	}
	log.Info("Commission reconciled", zap.String("status", string(u.To)))
	metrics.RecordPayout("commission", "reconciled_"+string(u.To))

	if u.To == models.CommissionPaid {
		recipient, err := r.store.GetUser(ctx, c.RecipientID)
		if err != nil {
			log.Warn("Recipient not found for paid commission notification", zap.Error(err))
			return true, nil
		}
		c.Status = u.To
		r.notifier.CommissionPaid(ctx, recipient, c)
	}
	return true, nil
}

func (r *Reconciler) reconcileWithdrawal(ctx context.Context, ev TransferEvent) (bool, error) {
	w, err := r.store.FindWithdrawalByTransferReference(ctx, ev.Reference)
	if err != nil {
		return false, err
	}
	log := r.log.With(zap.String("withdrawal_id", w.ID), zap.String("event", ev.Event), zap.String("reference", ev.Reference))

	u := ledger.WithdrawalUpdate{TransferCode: ev.TransferCode}
	switch ev.Event {
	case EventTransferSuccess:
		u.To, u.At = models.WithdrawalCompleted, r.now()
	case EventTransferFailed, EventTransferReversed:
		u.To, u.Notes = models.WithdrawalFailed, failureReason(ev)
	default:
		return false, fmt.Errorf("%w: unsupported transfer event %q", ErrValidation, ev.Event)
	}

	moved, err := r.store.TransitionWithdrawal(ctx, w.ID, u)
	if err != nil {
		return false, err
	}
	if !moved {
		log.Info("Withdrawal already reconciled", zap.String("status", string(w.Status)))
		return false, nil
	}
	log.Info("Withdrawal reconciled", zap.String("status", string(u.To)))
	metrics.RecordPayout("withdrawal", "reconciled_"+string(u.To))

	updated, err := r.store.GetWithdrawal(ctx, w.ID)
	if err != nil || updated.Affiliate == nil {
		return true, nil
	}
	if u.To == models.WithdrawalCompleted {
		r.notifier.WithdrawalCompleted(ctx, updated.Affiliate, updated)
	} else {
		r.notifier.WithdrawalFailed(ctx, updated.Affiliate, updated, u.Notes)
	}
	return true, nil
}
