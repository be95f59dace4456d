package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Marketplace/internal/database/dbtest"
	"Marketplace/internal/ledger"
	"Marketplace/internal/models"
)

// fakeGateway records payout calls. Hooks override the default success path.
type fakeGateway struct {
	mu sync.Mutex

	recipientFunc func(req RecipientRequest) (string, error)
	transferFunc  func(req TransferRequest) (*TransferResult, error)

	recipients []RecipientRequest
	transfers  []TransferRequest
}

func (g *fakeGateway) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	g.mu.Lock()
	g.recipients = append(g.recipients, req)
	fn := g.recipientFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return "RCP_" + req.AccountNumber, nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	g.mu.Lock()
	g.transfers = append(g.transfers, req)
	fn := g.transferFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &TransferResult{
		TransferCode: "TRF_" + req.Reference,
		Reference:    req.Reference,
		Status:       "success",
		Amount:       req.AmountMinor,
	}, nil
}

func (g *fakeGateway) transferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.transfers)
}

func (g *fakeGateway) transferredTo(recipientCode string) []TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []TransferRequest
	for _, t := range g.transfers {
		if t.RecipientCode == recipientCode {
			out = append(out, t)
		}
	}
	return out
}

func pendingTransfer(req TransferRequest) (*TransferResult, error) {
	return &TransferResult{TransferCode: "TRF_" + req.Reference, Reference: req.Reference, Status: "pending", Amount: req.AmountMinor}, nil
}

type recordingNotifier struct {
	mu                   sync.Mutex
	commissionsPaid      []string
	withdrawalsCompleted []string
	withdrawalsFailed    []string
}

func (n *recordingNotifier) CommissionPaid(_ context.Context, _ *models.User, c *models.Commission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commissionsPaid = append(n.commissionsPaid, c.ID)
}

func (n *recordingNotifier) WithdrawalCompleted(_ context.Context, _ *models.User, w *models.Withdrawal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.withdrawalsCompleted = append(n.withdrawalsCompleted, w.ID)
}

func (n *recordingNotifier) WithdrawalFailed(_ context.Context, _ *models.User, w *models.Withdrawal, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.withdrawalsFailed = append(n.withdrawalsFailed, w.ID)
}

// fixture is a seeded marketplace: one admin, one seller, one affiliate and
// one active product.
type fixture struct {
	db        *gorm.DB
	store     *ledger.Store
	admin     *models.User
	seller    *models.User
	affiliate *models.User
	product   *models.Product
}

var userSeq int

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{db: db, store: ledger.NewStore(db)}

	f.admin = f.addUser(t, models.RoleAdmin, "0201234567")
	f.seller = f.addUser(t, models.RoleSeller, "0541234567")
	f.affiliate = f.addUser(t, models.RoleAffiliate, "0271234567")
	code := "REF123"
	require.NoError(t, db.Model(f.affiliate).Update("referral_code", code).Error)
	f.affiliate.ReferralCode = &code

	f.product = &models.Product{
		SellerID:     f.seller.ID,
		Name:         "Kente stole",
		BusinessName: "Adwoa Weaves",
		Price:        decimal.NewFromInt(50),
		IsActive:     true,
	}
	require.NoError(t, db.Create(f.product).Error)
	return f
}

func (f *fixture) addUser(t *testing.T, role models.Role, phone string) *models.User {
	t.Helper()
	userSeq++
	u := &models.User{
		FullName: fmt.Sprintf("%s user %d", role, userSeq),
		Email:    fmt.Sprintf("%s%d@example.com", role, userSeq),
		Phone:    phone,
		Role:     role,
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) addTransaction(t *testing.T, amount string, affiliateID *string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ProductID:       f.product.ID,
		CustomerName:    "Kofi Mensah",
		CustomerEmail:   "kofi@example.com",
		CustomerPhone:   "0241112222",
		ShippingAddress: "12 Oxford St, Osu",
		Amount:          decimal.RequireFromString(amount),
		PaymentStatus:   models.PaymentPending,
		AffiliateID:     affiliateID,
	}
	tx.PaymentReference = fmt.Sprintf("txn_test_%d", userSeq)
	userSeq++
	require.NoError(t, f.db.Create(tx).Error)
	return tx
}

// addPaidCommission credits an affiliate with a paid commission on a
// completed transaction.
func (f *fixture) addPaidCommission(t *testing.T, amount string) {
	t.Helper()
	tx := f.addTransaction(t, "100", &f.affiliate.ID)
	require.NoError(t, f.db.Model(tx).Update("payment_status", models.PaymentCompleted).Error)
	require.NoError(t, f.db.Create(&models.Commission{
		TransactionID:  tx.ID,
		RecipientID:    f.affiliate.ID,
		Amount:         decimal.RequireFromString(amount),
		CommissionType: models.CommissionAffiliate,
		Status:         models.CommissionPaid,
	}).Error)
}

func (f *fixture) commissions(t *testing.T, transactionID string) map[models.CommissionType]models.Commission {
	t.Helper()
	rows, err := f.store.CommissionsForTransaction(context.Background(), transactionID)
	require.NoError(t, err)
	out := make(map[models.CommissionType]models.Commission, len(rows))
	for _, c := range rows {
		out[c.CommissionType] = c
	}
	return out
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}
