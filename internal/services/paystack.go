package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// PaystackService talks to the Paystack REST API. Every call is a single
// attempt; timeouts come from the HTTP client and surface as ErrUpstream.
type PaystackService struct {
	SecretKey string
	BaseURL   string
	Currency  string
	client    *http.Client
}

// Paystack API envelope
type paystackResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type ChargeRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	CallbackURL string
	Phone       string
	Provider    string
}

type ChargeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
}

type TransferRequest struct {
	AmountMinor   int64
	RecipientCode string
	Reason        string
	Reference     string
}

// TransferResult is the transfer handle returned on initiation.
type TransferResult struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

// Settled reports whether the processor finished the transfer synchronously.
func (t *TransferResult) Settled() bool {
	return t.Status == "success"
}

func NewPaystackService(secretKey, baseURL, currency string, timeout time.Duration) *PaystackService {
	return &PaystackService{
		SecretKey: secretKey,
		BaseURL:   baseURL,
		Currency:  currency,
		client:    &http.Client{Timeout: timeout},
	}
}

// makeRequest makes HTTP request to Paystack API and decodes data into out
func (ps *PaystackService) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, ps.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ps.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ps.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: paystack %s: %v", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: paystack %s: reading response: %v", ErrUpstream, endpoint, err)
	}

	var result paystackResponse
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(raw)
		if decodeErr == nil && result.Message != "" {
			msg = result.Message
		}
		return fmt.Errorf("%w: paystack %s returned %d: %s", ErrUpstream, endpoint, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: paystack %s: failed to decode response: %v", ErrUpstream, endpoint, decodeErr)
	}
	if !result.Status {
		return fmt.Errorf("%w: paystack error: %s", ErrUpstream, result.Message)
	}

	if out != nil {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("%w: paystack %s: failed to decode data: %v", ErrUpstream, endpoint, err)
		}
	}
	return nil
}

// InitializeCharge starts a mobile-money checkout for a transaction.
func (ps *PaystackService) InitializeCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"email":        req.Email,
		"amount":       req.AmountMinor,
		"currency":     ps.Currency,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"channels":     []string{"mobile_money"},
		"mobile_money": map[string]string{
			"phone":    req.Phone,
			"provider": req.Provider,
		},
	}

	var result ChargeResult
	if err := ps.makeRequest(ctx, http.MethodPost, "/transaction/initialize", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTransferRecipient registers a mobile-money wallet and returns its recipient code.
func (ps *PaystackService) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	payload := map[string]interface{}{
		"type":           "mobile_money",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       ps.Currency,
	}

	var result struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := ps.makeRequest(ctx, http.MethodPost, "/transferrecipient", payload, &result); err != nil {
		return "", err
	}
	if result.RecipientCode == "" {
		return "", fmt.Errorf("%w: paystack returned no recipient code", ErrUpstream)
	}
	return result.RecipientCode, nil
}

// InitiateTransfer sends AmountMinor from the platform balance to a recipient.
func (ps *PaystackService) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	payload := map[string]interface{}{
		"source":    "balance",
		"amount":    req.AmountMinor,
		"recipient": req.RecipientCode,
		"reason":    req.Reason,
		"reference": req.Reference,
		"currency":  ps.Currency,
	}

	var result TransferResult
	if err := ps.makeRequest(ctx, http.MethodPost, "/transfer", payload, &result); err != nil {
		return nil, err
	}
	switch result.Status {
	case "failed", "reversed", "abandoned":
		return nil, fmt.Errorf("%w: transfer %s %s", ErrUpstream, result.Reference, result.Status)
	}
	if result.Reference == "" {
		result.Reference = req.Reference
	}
	return &result, nil
}

// VerifySignature checks a webhook's x-paystack-signature header, the hex
// HMAC-SHA512 of the raw body keyed with the secret key.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign computes the signature Paystack would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ToMinorUnits converts a major-unit amount (cedis) to pesewas, rounding half-up.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
