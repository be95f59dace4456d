package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Marketplace/internal/database/dbtest"
	"Marketplace/internal/ledger"
	"Marketplace/internal/models"
)

type seed struct {
	store     *ledger.Store
	seller    *models.User
	affiliate *models.User
	product   *models.Product
	n         int
}

func newSeed(t *testing.T) *seed {
	t.Helper()
	db := dbtest.New(t)
	s := &seed{store: ledger.NewStore(db)}

	s.seller = &models.User{FullName: "Ama", Email: "ama@example.com", Phone: "0241234567", Role: models.RoleSeller}
	s.affiliate = &models.User{FullName: "Yaw", Email: "yaw@example.com", Phone: "0261234567", Role: models.RoleAffiliate}
	require.NoError(t, db.Create(s.seller).Error)
	require.NoError(t, db.Create(s.affiliate).Error)

	s.product = &models.Product{SellerID: s.seller.ID, Name: "Batik shirt", Price: decimal.NewFromInt(80), IsActive: true}
	require.NoError(t, db.Create(s.product).Error)
	return s
}

func (s *seed) transaction(t *testing.T, status models.PaymentStatus) *models.Transaction {
	t.Helper()
	s.n++
	tx := &models.Transaction{
		ProductID:        s.product.ID,
		CustomerName:     "Esi",
		CustomerEmail:    "esi@example.com",
		CustomerPhone:    "0551234567",
		Amount:           s.product.Price,
		PaymentStatus:    status,
		PaymentReference: fmt.Sprintf("txn_seed_%d", s.n),
	}
	require.NoError(t, s.store.CreateTransaction(context.Background(), tx))
	return tx
}

func (s *seed) commission(t *testing.T, txID string, typ models.CommissionType, amount int64, status models.CommissionStatus) *models.Commission {
	t.Helper()
	c := models.Commission{
		TransactionID:  txID,
		RecipientID:    s.affiliate.ID,
		Amount:         decimal.NewFromInt(amount),
		CommissionType: typ,
		Status:         status,
	}
	require.NoError(t, s.store.InsertCommissions(context.Background(), []models.Commission{c}))
	rows, err := s.store.CommissionsForTransaction(context.Background(), txID)
	require.NoError(t, err)
	for i := range rows {
		if rows[i].CommissionType == typ {
			return &rows[i]
		}
	}
	t.Fatalf("commission %s not stored", typ)
	return nil
}

func TestCompleteTransaction_OnlyOnce(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentPending)

	ok, err := s.store.CompleteTransaction(ctx, tx.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.store.CompleteTransaction(ctx, tx.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := s.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
	assert.NotNil(t, stored.CompletedAt)
}

func TestFindTransactionByReference_NotFound(t *testing.T) {
	s := newSeed(t)
	_, err := s.store.FindTransactionByReference(context.Background(), "txn_nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestInsertCommissions_AllOrNothing(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)

	// The second row repeats the (transaction, type) pair and violates the unique index.
	rows := []models.Commission{
		{TransactionID: tx.ID, RecipientID: s.seller.ID, Amount: decimal.NewFromInt(72), CommissionType: models.CommissionSeller},
		{TransactionID: tx.ID, RecipientID: s.seller.ID, Amount: decimal.NewFromInt(8), CommissionType: models.CommissionSeller},
	}
	require.Error(t, s.store.InsertCommissions(ctx, rows))

	stored, err := s.store.CommissionsForTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRecordPayoutAttempt(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)
	c := s.commission(t, tx.ID, models.CommissionAffiliate, 8, models.CommissionPending)

	ok, err := s.store.RecordPayoutAttempt(ctx, c.ID, 0, "com_a_1")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second claimant still holding attempts=0 loses.
	ok, err = s.store.RecordPayoutAttempt(ctx, c.ID, 0, "com_a_1")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.store.FindCommissionByTransferReference(ctx, "com_a_1")
	require.NoError(t, err)
	assert.Equal(t, 1, found.PayoutAttempts)
	assert.Equal(t, models.CommissionPending, found.Status)

	// Rows that are neither pending nor failed cannot be claimed.
	ok, err = s.store.TransitionCommission(ctx, c.ID, []models.CommissionStatus{models.CommissionPending}, ledger.CommissionUpdate{To: models.CommissionSubmitted})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.store.RecordPayoutAttempt(ctx, c.ID, 1, "com_a_2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordPayoutAttempt_ReopensFailed(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)
	c := s.commission(t, tx.ID, models.CommissionSeller, 72, models.CommissionFailed)

	ok, err := s.store.RecordPayoutAttempt(ctx, c.ID, 0, "com_b_1")
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := s.store.CommissionsForTransaction(ctx, tx.ID, models.CommissionPending)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "com_b_1", *rows[0].TransferReference)
}

func TestTransitionCommission(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)
	c := s.commission(t, tx.ID, models.CommissionAffiliate, 8, models.CommissionPending)

	paidAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ok, err := s.store.TransitionCommission(ctx, c.ID, []models.CommissionStatus{models.CommissionPending}, ledger.CommissionUpdate{
		To:           models.CommissionPaid,
		TransferCode: "TRF_1",
		At:           paidAt,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// Already paid: a pending-only transition no longer matches.
	ok, err = s.store.TransitionCommission(ctx, c.ID, []models.CommissionStatus{models.CommissionPending}, ledger.CommissionUpdate{
		To:            models.CommissionFailed,
		FailureReason: "late failure",
	})
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := s.store.CommissionsForTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.CommissionPaid, rows[0].Status)
	assert.Equal(t, "TRF_1", rows[0].TransferCode)
	require.NotNil(t, rows[0].PaidAt)
	assert.True(t, paidAt.Equal(*rows[0].PaidAt))
}

func TestSweepQueries(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	bare := s.transaction(t, models.PaymentCompleted)
	payable := s.transaction(t, models.PaymentCompleted)
	settled := s.transaction(t, models.PaymentCompleted)
	s.transaction(t, models.PaymentPending)

	s.commission(t, payable.ID, models.CommissionSeller, 72, models.CommissionFailed)
	s.commission(t, settled.ID, models.CommissionSeller, 72, models.CommissionPaid)

	uncommissioned, err := s.store.UncommissionedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, uncommissioned, 1)
	assert.Equal(t, bare.ID, uncommissioned[0].ID)

	ids, err := s.store.TransactionIDsWithPayableCommissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{payable.ID}, ids)
}

func TestReserveWithdrawal(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)
	s.commission(t, tx.ID, models.CommissionAffiliate, 30, models.CommissionPaid)

	first, balance, err := s.store.ReserveWithdrawal(ctx, s.affiliate.ID, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, first.Status)
	assert.True(t, balance.Available().Equal(decimal.NewFromInt(30)))

	// The pending withdrawal holds 20 of the 30 earned.
	_, balance, err = s.store.ReserveWithdrawal(ctx, s.affiliate.ID, decimal.RequireFromString("10.01"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.True(t, balance.Reserved.Equal(decimal.NewFromInt(20)))

	_, _, err = s.store.ReserveWithdrawal(ctx, s.affiliate.ID, decimal.NewFromInt(10))
	require.NoError(t, err)

	after, err := s.store.AffiliateBalance(ctx, s.affiliate.ID)
	require.NoError(t, err)
	assert.True(t, after.Available().IsZero())

	_, _, err = s.store.ReserveWithdrawal(ctx, "00000000-0000-0000-0000-000000000000", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestTransitionWithdrawal_OnlyFromPending(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)
	s.commission(t, tx.ID, models.CommissionAffiliate, 50, models.CommissionPaid)

	w, _, err := s.store.ReserveWithdrawal(ctx, s.affiliate.ID, decimal.NewFromInt(15))
	require.NoError(t, err)

	ok, err := s.store.TransitionWithdrawal(ctx, w.ID, ledger.WithdrawalUpdate{To: models.WithdrawalPending, TransferReference: "wdr_" + w.ID + "_1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.store.TransitionWithdrawal(ctx, w.ID, ledger.WithdrawalUpdate{To: models.WithdrawalCompleted, TransferCode: "TRF_9"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.store.TransitionWithdrawal(ctx, w.ID, ledger.WithdrawalUpdate{To: models.WithdrawalFailed, Notes: "too late"})
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.store.FindWithdrawalByTransferReference(ctx, "wdr_"+w.ID+"_1")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, found.Status)
	assert.Equal(t, "TRF_9", found.TransferCode)
	assert.NotNil(t, found.CompletedAt)
}

func TestPendingWithdrawalsAndStats(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()
	tx := s.transaction(t, models.PaymentCompleted)
	s.commission(t, tx.ID, models.CommissionAffiliate, 100, models.CommissionPaid)

	var ids []string
	for _, amount := range []int64{10, 20, 30} {
		w, _, err := s.store.ReserveWithdrawal(ctx, s.affiliate.ID, decimal.NewFromInt(amount))
		require.NoError(t, err)
		ids = append(ids, w.ID)
	}
	_, err := s.store.TransitionWithdrawal(ctx, ids[0], ledger.WithdrawalUpdate{To: models.WithdrawalCompleted})
	require.NoError(t, err)
	_, err = s.store.TransitionWithdrawal(ctx, ids[1], ledger.WithdrawalUpdate{To: models.WithdrawalFailed})
	require.NoError(t, err)

	page, total, err := s.store.PendingWithdrawals(ctx, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].ID)
	require.NotNil(t, page[0].Affiliate)
	assert.Equal(t, s.affiliate.Email, page[0].Affiliate.Email)

	stats, err := s.store.WithdrawalStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.Pending)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 1, stats.Failed)
	assert.True(t, stats.PendingAmount.Equal(decimal.NewFromInt(30)))
	assert.True(t, stats.CompletedAmount.Equal(decimal.NewFromInt(10)))
}

func TestFindAdmin_OldestWins(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	_, err := s.store.FindAdmin(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	older := &models.User{FullName: "Root", Email: "root@example.com", Phone: "0201111111", Role: models.RoleAdmin, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.User{FullName: "Ops", Email: "ops@example.com", Phone: "0202222222", Role: models.RoleAdmin}
	require.NoError(t, s.store.DB().Create(newer).Error)
	require.NoError(t, s.store.DB().Create(older).Error)

	admin, err := s.store.FindAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, admin.ID)
}
