// Package ledger persists transactions, commissions and withdrawals.
//
// Every status change is a conditional update: the row only moves when it is
// still in one of the expected prior statuses, and callers branch on whether
// a row was affected.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Marketplace/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// --- users, products -------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &user, nil
}

// FindAdmin returns the platform admin. When several users carry the admin
// role the oldest one is the payout recipient.
func (s *Store) FindAdmin(ctx context.Context) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("role = ?", models.RoleAdmin).
		Order("created_at ASC").
		First(&user).Error
	if err != nil {
		return nil, notFound(err, "admin user")
	}
	return &user, nil
}

func (s *Store) FindAffiliateByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("referral_code = ? AND role = ?", code, models.RoleAffiliate).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, "affiliate with referral code "+code)
	}
	return &user, nil
}

func (s *Store) GetSellerProfile(ctx context.Context, userID string) (*models.Seller, error) {
	var seller models.Seller
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&seller).Error; err != nil {
		return nil, notFound(err, "seller profile for "+userID)
	}
	return &seller, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, notFound(err, "product "+id)
	}
	return &product, nil
}

func (s *Store) ActiveProductsBySeller(ctx context.Context, sellerID string) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("seller_id = ? AND is_active = ?", sellerID, true).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

// --- transactions ----------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, notFound(err, "transaction "+id)
	}
	return &tx, nil
}

func (s *Store) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&tx).Error; err != nil {
		return nil, notFound(err, "transaction with reference "+reference)
	}
	return &tx, nil
}

// CompleteTransaction moves a pending transaction to completed. It reports
// false when another writer already completed it.
func (s *Store) CompleteTransaction(ctx context.Context, id string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentCompleted,
			"completed_at":   at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to complete transaction %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) TransactionsByAffiliate(ctx context.Context, affiliateID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Find(&txs).Error
	return txs, err
}

// CompletedSalesBySeller lists completed transactions for products owned by sellerID.
func (s *Store) CompletedSalesBySeller(ctx context.Context, sellerID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Joins("JOIN products ON products.id = transactions.product_id").
		Where("products.seller_id = ? AND transactions.payment_status = ?", sellerID, models.PaymentCompleted).
		Preload("Product").
		Order("transactions.created_at DESC").
		Find(&txs).Error
	return txs, err
}

// UncommissionedTransactions lists completed transactions without any
// commission rows. These need manual reconciliation.
func (s *Store) UncommissionedTransactions(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("payment_status = ?", models.PaymentCompleted).
		Where("NOT EXISTS (SELECT 1 FROM commissions WHERE commissions.transaction_id = transactions.id)").
		Order("completed_at ASC").
		Find(&txs).Error
	return txs, err
}

// TransactionIDsWithPayableCommissions feeds the distribution sweep.
func (s *Store) TransactionIDsWithPayableCommissions(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("status IN ?", models.PayableCommissionStatuses).
		Distinct("transaction_id").
		Pluck("transaction_id", &ids).Error
	return ids, err
}

// --- commissions -----------------------------------------------------------

// InsertCommissions writes the whole split in one statement inside one
// database transaction; either every row lands or none does.
func (s *Store) InsertCommissions(ctx context.Context, commissions []models.Commission) error {
	if len(commissions) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&commissions).Error
	})
}

func (s *Store) CommissionsForTransaction(ctx context.Context, transactionID string, statuses ...models.CommissionStatus) ([]models.Commission, error) {
	query := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var commissions []models.Commission
	err := query.Order("created_at ASC").Find(&commissions).Error
	return commissions, err
}

func (s *Store) CommissionsByRecipient(ctx context.Context, recipientID string) ([]models.Commission, error) {
	var commissions []models.Commission
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Find(&commissions).Error
	return commissions, err
}

func (s *Store) FindCommissionByTransferReference(ctx context.Context, reference string) (*models.Commission, error) {
	var commission models.Commission
	if err := s.db.WithContext(ctx).Where("transfer_reference = ?", reference).First(&commission).Error; err != nil {
		return nil, notFound(err, "commission with transfer reference "+reference)
	}
	return &commission, nil
}

// CommissionUpdate describes a status transition and the fields written with it.
type CommissionUpdate struct {
	To                models.CommissionStatus
	TransferReference string
	TransferCode      string
	FailureReason     string
	At                time.Time
}

// RecordPayoutAttempt claims a payable commission for one payout attempt.
// The update only matches while payout_attempts still equals attempts, so of
// two concurrent distributors exactly one wins the row. A failed commission
// goes back to pending for the new attempt.
func (s *Store) RecordPayoutAttempt(ctx context.Context, id string, attempts int, reference string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id = ? AND payout_attempts = ? AND status IN ?", id, attempts, models.PayableCommissionStatuses).
		Updates(map[string]interface{}{
			"status":             models.CommissionPending,
			"payout_attempts":    gorm.Expr("payout_attempts + 1"),
			"transfer_reference": reference,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to record payout attempt for commission %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// TransitionCommission applies u when the commission is in one of from.
func (s *Store) TransitionCommission(ctx context.Context, id string, from []models.CommissionStatus, u CommissionUpdate) (bool, error) {
	updates := map[string]interface{}{"status": u.To}
	if u.TransferReference != "" {
		updates["transfer_reference"] = u.TransferReference
	}
	if u.TransferCode != "" {
		updates["transfer_code"] = u.TransferCode
	}
	if u.To == models.CommissionPaid {
		at := u.At
		if at.IsZero() {
			at = time.Now()
		}
		updates["paid_at"] = at
		updates["failure_reason"] = ""
	}
	if u.To == models.CommissionFailed {
		updates["failure_reason"] = u.FailureReason
	}

	result := s.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update commission %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// --- withdrawals -----------------------------------------------------------

// Balance is an affiliate's position: paid commissions minus completed and
// pending withdrawals.
type Balance struct {
	Earned    decimal.Decimal `json:"earned"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
	Reserved  decimal.Decimal `json:"reserved"`
}

func (b Balance) Available() decimal.Decimal {
	return b.Earned.Sub(b.Withdrawn).Sub(b.Reserved)
}

func sumAmounts(db *gorm.DB, model interface{}, where string, args ...interface{}) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := db.Model(model).Where(where, args...).Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

func balanceOf(db *gorm.DB, affiliateID string) (Balance, error) {
	var b Balance
	var err error
	if b.Earned, err = sumAmounts(db, &models.Commission{}, "recipient_id = ? AND status = ?", affiliateID, models.CommissionPaid); err != nil {
		return b, fmt.Errorf("failed to sum commissions: %w", err)
	}
	if b.Withdrawn, err = sumAmounts(db, &models.Withdrawal{}, "affiliate_id = ? AND status = ?", affiliateID, models.WithdrawalCompleted); err != nil {
		return b, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	if b.Reserved, err = sumAmounts(db, &models.Withdrawal{}, "affiliate_id = ? AND status = ?", affiliateID, models.WithdrawalPending); err != nil {
		return b, fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}
	return b, nil
}

func (s *Store) AffiliateBalance(ctx context.Context, affiliateID string) (Balance, error) {
	return balanceOf(s.db.WithContext(ctx), affiliateID)
}

// ReserveWithdrawal re-validates the balance and inserts a pending withdrawal
// in one database transaction. The affiliate's user row is locked first so
// concurrent requests from the same affiliate serialise on it.
func (s *Store) ReserveWithdrawal(ctx context.Context, affiliateID string, amount decimal.Decimal) (*models.Withdrawal, Balance, error) {
	var withdrawal *models.Withdrawal
	var balance Balance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", affiliateID).First(&user).Error; err != nil {
			return notFound(err, "affiliate "+affiliateID)
		}

		b, err := balanceOf(tx, affiliateID)
		if err != nil {
			return err
		}
		balance = b
		if amount.GreaterThan(b.Available()) {
			return ErrInsufficientBalance
		}

		w := models.Withdrawal{
			AffiliateID: affiliateID,
			Amount:      amount,
			Status:      models.WithdrawalPending,
		}
		if err := tx.Create(&w).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		withdrawal = &w
		return nil
	})
	if err != nil {
		return nil, balance, err
	}
	return withdrawal, balance, nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := s.db.WithContext(ctx).Preload("Affiliate").Where("id = ?", id).First(&w).Error; err != nil {
		return nil, notFound(err, "withdrawal "+id)
	}
	return &w, nil
}

func (s *Store) FindWithdrawalByTransferReference(ctx context.Context, reference string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := s.db.WithContext(ctx).Where("transfer_reference = ?", reference).First(&w).Error; err != nil {
		return nil, notFound(err, "withdrawal with transfer reference "+reference)
	}
	return &w, nil
}

func (s *Store) WithdrawalsByAffiliate(ctx context.Context, affiliateID string) ([]models.Withdrawal, error) {
	var ws []models.Withdrawal
	err := s.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("requested_at DESC").
		Find(&ws).Error
	return ws, err
}

// WithdrawalUpdate describes a withdrawal status transition.
type WithdrawalUpdate struct {
	To                models.WithdrawalStatus
	TransferReference string
	TransferCode      string
	Notes             string
	At                time.Time
}

// TransitionWithdrawal applies u when the withdrawal is still pending.
// A pending->pending update only records transfer details.
func (s *Store) TransitionWithdrawal(ctx context.Context, id string, u WithdrawalUpdate) (bool, error) {
	updates := map[string]interface{}{"status": u.To}
	if u.TransferReference != "" {
		updates["transfer_reference"] = u.TransferReference
	}
	if u.TransferCode != "" {
		updates["transfer_code"] = u.TransferCode
	}
	if u.Notes != "" {
		updates["notes"] = u.Notes
	}
	if u.To == models.WithdrawalCompleted {
		at := u.At
		if at.IsZero() {
			at = time.Now()
		}
		updates["completed_at"] = at
	}

	result := s.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update withdrawal %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// PendingWithdrawals returns one page of pending withdrawals, oldest first,
// and the total number pending.
func (s *Store) PendingWithdrawals(ctx context.Context, offset, limit int) ([]models.Withdrawal, int64, error) {
	var total int64
	query := s.db.WithContext(ctx).Model(&models.Withdrawal{}).Where("status = ?", models.WithdrawalPending)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pending withdrawals: %w", err)
	}

	var ws []models.Withdrawal
	err := s.db.WithContext(ctx).
		Where("status = ?", models.WithdrawalPending).
		Preload("Affiliate").
		Order("requested_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&ws).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return ws, total, nil
}

type WithdrawalStats struct {
	Total           int64           `json:"total_withdrawals"`
	Pending         int64           `json:"pending_withdrawals"`
	Completed       int64           `json:"completed_withdrawals"`
	Failed          int64           `json:"failed_withdrawals"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	CompletedAmount decimal.Decimal `json:"completed_amount"`
}

func (s *Store) WithdrawalStats(ctx context.Context) (WithdrawalStats, error) {
	var stats WithdrawalStats
	db := s.db.WithContext(ctx)

	counts := []struct {
		status models.WithdrawalStatus
		dst    *int64
	}{
		{models.WithdrawalPending, &stats.Pending},
		{models.WithdrawalCompleted, &stats.Completed},
		{models.WithdrawalFailed, &stats.Failed},
	}
	for _, c := range counts {
		if err := db.Model(&models.Withdrawal{}).Where("status = ?", c.status).Count(c.dst).Error; err != nil {
			return stats, err
		}
		stats.Total += *c.dst
	}

	var err error
	if stats.PendingAmount, err = sumAmounts(db, &models.Withdrawal{}, "status = ?", models.WithdrawalPending); err != nil {
		return stats, err
	}
	if stats.CompletedAmount, err = sumAmounts(db, &models.Withdrawal{}, "status = ?", models.WithdrawalCompleted); err != nil {
		return stats, err
	}
	return stats, nil
}
