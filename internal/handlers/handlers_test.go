package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"Marketplace/internal/database/dbtest"
	"Marketplace/internal/handlers"
	"Marketplace/internal/ledger"
	"Marketplace/internal/models"
	"Marketplace/internal/routes"
	"Marketplace/internal/services"
)

const (
	webhookSecret   = "sk_test_webhook"
	jwtSecret       = "jwt-secret"
	signatureHeader = "x-paystack-signature"
)

type stubGateway struct {
	transfers int
}

func (g *stubGateway) CreateTransferRecipient(_ context.Context, req services.RecipientRequest) (string, error) {
	return "RCP_" + req.AccountNumber, nil
}

func (g *stubGateway) InitiateTransfer(_ context.Context, req services.TransferRequest) (*services.TransferResult, error) {
	g.transfers++
	return &services.TransferResult{TransferCode: "TRF_" + req.Reference, Reference: req.Reference, Status: "success"}, nil
}

type testEnv struct {
	app       *fiber.App
	store     *ledger.Store
	gateway   *stubGateway
	admin     *models.User
	seller    *models.User
	affiliate *models.User
	product   *models.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	log := zaptest.NewLogger(t)
	store := ledger.NewStore(db)
	gw := &stubGateway{}

	env := &testEnv{store: store, gateway: gw}
	code := "AFF01"
	env.admin = &models.User{FullName: "Admin", Email: "admin@example.com", Phone: "0201234567", Role: models.RoleAdmin}
	env.seller = &models.User{FullName: "Seller", Email: "seller@example.com", Phone: "0541234567", Role: models.RoleSeller}
	env.affiliate = &models.User{FullName: "Affiliate", Email: "aff@example.com", Phone: "0571234567", Role: models.RoleAffiliate, ReferralCode: &code}
	for _, u := range []*models.User{env.admin, env.seller, env.affiliate} {
		require.NoError(t, db.Create(u).Error)
	}
	env.product = &models.Product{SellerID: env.seller.ID, Name: "Shea butter", Price: decimal.NewFromInt(50), IsActive: true}
	require.NoError(t, db.Create(env.product).Error)

	notifier := services.NewNotificationService(db, nil, log)
	distributor := services.NewDistributor(store, gw, notifier, log)
	engine := services.NewSettlementEngine(store, distributor, log)
	reconciler := services.NewReconciler(store, nil, log)
	withdrawals := services.NewWithdrawalService(store, gw, notifier, log)

	env.app = fiber.New()
	routes.SetupRoutes(env.app, routes.Handlers{
		Webhook:      handlers.NewWebhookHandler(webhookSecret, engine, reconciler, log),
		Payment:      handlers.NewPaymentHandler(services.NewPaymentService(store, nil, "", log)),
		Withdrawal:   handlers.NewWithdrawalHandler(withdrawals),
		Stats:        handlers.NewStatsHandler(services.NewStatsService(store)),
		Notification: handlers.NewNotificationHandler(notifier),
		Admin:        handlers.NewAdminHandler(store, withdrawals, distributor, log),
		JWTSecret:    jwtSecret,
		Users:        store,
	})
	return env
}

func (e *testEnv) pendingTransaction(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ProductID:        e.product.ID,
		CustomerName:     "Kofi",
		CustomerEmail:    "kofi@example.com",
		CustomerPhone:    "0241112222",
		Amount:           decimal.NewFromInt(50),
		PaymentStatus:    models.PaymentPending,
		PaymentReference: reference,
	}
	require.NoError(t, e.store.CreateTransaction(context.Background(), tx))
	return tx
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, app *fiber.App, method, path string, body []byte, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func chargeSuccess(reference string) []byte {
	return []byte(`{"event":"charge.success","data":{"reference":"` + reference + `","status":"success","amount":5000}}`)
}

func TestWebhook_RejectsBadSignatureWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	tx := env.pendingTransaction(t, "txn_sig")
	body := chargeSuccess(tx.PaymentReference)

	for _, sig := range []string{"", "deadbeef", services.Sign("wrong-secret", body)} {
		status, resp := do(t, env.app, "POST", "/api/webhooks/paystack", body, map[string]string{signatureHeader: sig})
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "Invalid signature", resp["error"])
	}

	stored, err := env.store.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	commissions, err := env.store.CommissionsForTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Empty(t, commissions)
	assert.Equal(t, 0, env.gateway.transfers)
}

func TestWebhook_ChargeSuccessSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	tx := env.pendingTransaction(t, "txn_ok")
	body := chargeSuccess(tx.PaymentReference)
	headers := map[string]string{signatureHeader: services.Sign(webhookSecret, body)}

	status, resp := do(t, env.app, "POST", "/api/webhooks/paystack", body, headers)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Webhook processed successfully", resp["message"])

	status, resp = do(t, env.app, "POST", "/api/webhooks/paystack", body, headers)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Transaction already processed", resp["message"])

	commissions, err := env.store.CommissionsForTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Len(t, commissions, 2)
	for _, c := range commissions {
		assert.Equal(t, models.CommissionPaid, c.Status)
	}
	assert.Equal(t, 2, env.gateway.transfers)
}

func TestWebhook_AcknowledgesWhatItCannotAct(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    []byte
		message string
	}{
		{"unknown reference", chargeSuccess("txn_missing"), "Transaction not found"},
		{"other event", []byte(`{"event":"subscription.create","data":{}}`), "Event ignored"},
		{"unknown transfer", []byte(`{"event":"transfer.success","data":{"reference":"com_x_1"}}`), "Transfer not found"},
		{"malformed", []byte(`{"event":`), "Malformed event ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := do(t, env.app, "POST", "/api/webhooks/paystack", tt.body, map[string]string{
				signatureHeader: services.Sign(webhookSecret, tt.body),
			})
			assert.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, tt.message, resp["message"])
		})
	}
}

func TestWithdrawalEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Credit the affiliate with 25.00 of paid commissions.
	tx := env.pendingTransaction(t, "txn_credit")
	require.NoError(t, env.store.DB().Model(tx).Update("payment_status", models.PaymentCompleted).Error)
	require.NoError(t, env.store.InsertCommissions(context.Background(), []models.Commission{{
		TransactionID:  tx.ID,
		RecipientID:    env.affiliate.ID,
		Amount:         decimal.NewFromInt(25),
		CommissionType: models.CommissionAffiliate,
		Status:         models.CommissionPaid,
	}}))

	body := func(userID, amount string) []byte {
		return []byte(`{"user_id":"` + userID + `","amount":` + amount + `}`)
	}
	auth := func(userID string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + token(t, userID)}
	}

	status, _ := do(t, env.app, "POST", "/api/withdrawals", body(env.affiliate.ID, "20"), nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, resp := do(t, env.app, "POST", "/api/withdrawals", body(env.affiliate.ID, "20"), auth(env.seller.ID))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.NotEmpty(t, resp["error"])

	status, resp = do(t, env.app, "POST", "/api/withdrawals", body(env.affiliate.ID, "5"), auth(env.affiliate.ID))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "minimum withdrawal amount is 10 GHS", resp["error"])

	status, resp = do(t, env.app, "POST", "/api/withdrawals", body(env.affiliate.ID, "25.01"), auth(env.affiliate.ID))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Insufficient balance", resp["error"])

	status, resp = do(t, env.app, "POST", "/api/withdrawals", body(env.affiliate.ID, "25"), auth(env.affiliate.ID))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp["success"])
	withdrawal, ok := resp["withdrawal"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "completed", withdrawal["status"])
	assert.Equal(t, "25", withdrawal["amount"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	status, _ := do(t, env.app, "GET", "/api/admin/withdrawals/stats", nil, map[string]string{
		"Authorization": "Bearer " + token(t, env.affiliate.ID),
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, resp := do(t, env.app, "GET", "/api/admin/withdrawals/stats", nil, map[string]string{
		"Authorization": "Bearer " + token(t, env.admin.ID),
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, resp, "stats")
}

func TestAdminDistributeAndSweep(t *testing.T) {
	env := newTestEnv(t)
	adminAuth := map[string]string{"Authorization": "Bearer " + token(t, env.admin.ID)}

	pending := env.pendingTransaction(t, "txn_pending")
	status, _ := do(t, env.app, "POST", "/api/admin/transactions/"+pending.ID+"/distribute", nil, adminAuth)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, resp := do(t, env.app, "POST", "/api/admin/commissions/sweep", nil, adminAuth)
	assert.Equal(t, fiber.StatusOK, status)
	report := resp["report"].(map[string]interface{})
	assert.EqualValues(t, 0, report["transactions"])

	status, resp = do(t, env.app, "GET", "/api/admin/transactions/uncommissioned", nil, adminAuth)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, resp["count"])
}

func TestNotificationsFollowPayouts(t *testing.T) {
	env := newTestEnv(t)
	tx := env.pendingTransaction(t, "txn_notify")
	body := chargeSuccess(tx.PaymentReference)
	status, _ := do(t, env.app, "POST", "/api/webhooks/paystack", body, map[string]string{
		signatureHeader: services.Sign(webhookSecret, body),
	})
	require.Equal(t, fiber.StatusOK, status)

	sellerAuth := map[string]string{"Authorization": "Bearer " + token(t, env.seller.ID)}
	status, resp := do(t, env.app, "GET", "/api/notifications/unread-count", nil, sellerAuth)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, resp["unread_count"])

	status, resp = do(t, env.app, "GET", "/api/notifications", nil, sellerAuth)
	assert.Equal(t, fiber.StatusOK, status)
	list := resp["notifications"].([]interface{})
	require.Len(t, list, 1)
	id := list[0].(map[string]interface{})["id"].(string)

	// Another user cannot touch the seller's notification.
	status, _ = do(t, env.app, "PATCH", "/api/notifications/"+id+"/read", nil, map[string]string{
		"Authorization": "Bearer " + token(t, env.affiliate.ID),
	})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, env.app, "PATCH", "/api/notifications/"+id+"/read", nil, sellerAuth)
	assert.Equal(t, fiber.StatusOK, status)

	_, resp = do(t, env.app, "GET", "/api/notifications/unread-count", nil, sellerAuth)
	assert.EqualValues(t, 0, resp["unread_count"])
}
