package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"Marketplace/internal/ledger"
	"Marketplace/internal/models"
)

type StatsStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CommissionsByRecipient(ctx context.Context, recipientID string) ([]models.Commission, error)
	TransactionsByAffiliate(ctx context.Context, affiliateID string) ([]models.Transaction, error)
	WithdrawalsByAffiliate(ctx context.Context, affiliateID string) ([]models.Withdrawal, error)
	AffiliateBalance(ctx context.Context, affiliateID string) (ledger.Balance, error)
	GetSellerProfile(ctx context.Context, userID string) (*models.Seller, error)
	ActiveProductsBySeller(ctx context.Context, sellerID string) ([]models.Product, error)
	CompletedSalesBySeller(ctx context.Context, sellerID string) ([]models.Transaction, error)
}

type AffiliateStats struct {
	ReferralCode      *string              `json:"referral_code"`
	TotalEarnings     decimal.Decimal      `json:"total_earnings"`
	PendingEarnings   decimal.Decimal      `json:"pending_earnings"`
	PaidEarnings      decimal.Decimal      `json:"paid_earnings"`
	AvailableBalance  decimal.Decimal      `json:"available_balance"`
	ReferralSales     []models.Transaction `json:"referral_sales"`
	WithdrawalHistory []models.Withdrawal  `json:"withdrawal_history"`
}

type SellerStats struct {
	BusinessName       string               `json:"business_name,omitempty"`
	ProductLimit       int                  `json:"product_limit"`
	ProductCount       int                  `json:"product_count"`
	Products           []models.Product     `json:"products"`
	TotalSales         int                  `json:"total_sales"`
	TotalRevenue       decimal.Decimal      `json:"total_revenue"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
}

const recentSalesLimit = 10

type StatsService struct {
	store StatsStore
}

func NewStatsService(store StatsStore) *StatsService {
	return &StatsService{store: store}
}

// AffiliateStats summarises an affiliate's earnings. Only the affiliate may
// read their own figures.
func (s *StatsService) AffiliateStats(ctx context.Context, requesterID, affiliateID string) (*AffiliateStats, error) {
	if requesterID != affiliateID {
		return nil, fmt.Errorf("%w: user id mismatch", ErrForbidden)
	}
	user, err := s.store.GetUser(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if !user.IsAffiliate() {
		return nil, fmt.Errorf("%w: user is not an affiliate", ErrForbidden)
	}

	commissions, err := s.store.CommissionsByRecipient(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commissions: %w", err)
	}
	stats := &AffiliateStats{
		ReferralCode:    user.ReferralCode,
		TotalEarnings:   decimal.Zero,
		PendingEarnings: decimal.Zero,
		PaidEarnings:    decimal.Zero,
	}
	for _, c := range commissions {
		stats.TotalEarnings = stats.TotalEarnings.Add(c.Amount)
		switch c.Status {
		case models.CommissionPaid:
			stats.PaidEarnings = stats.PaidEarnings.Add(c.Amount)
		case models.CommissionPending, models.CommissionSubmitted:
			stats.PendingEarnings = stats.PendingEarnings.Add(c.Amount)
		}
	}

	balance, err := s.store.AffiliateBalance(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balance: %w", err)
	}
	stats.AvailableBalance = balance.Available()

	if stats.ReferralSales, err = s.store.TransactionsByAffiliate(ctx, affiliateID); err != nil {
		return nil, fmt.Errorf("failed to fetch referral sales: %w", err)
	}
	if stats.WithdrawalHistory, err = s.store.WithdrawalsByAffiliate(ctx, affiliateID); err != nil {
		return nil, fmt.Errorf("failed to fetch withdrawal history: %w", err)
	}
	return stats, nil
}

func (s *StatsService) SellerStats(ctx context.Context, requesterID, sellerID string) (*SellerStats, error) {
	if requesterID != sellerID {
		return nil, fmt.Errorf("%w: user id mismatch", ErrForbidden)
	}
	if _, err := s.store.GetUser(ctx, sellerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown seller", ErrForbidden)
		}
		return nil, err
	}

	products, err := s.store.ActiveProductsBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	sales, err := s.store.CompletedSalesBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sales: %w", err)
	}

	revenue := decimal.Zero
	for _, t := range sales {
		revenue = revenue.Add(t.Amount)
	}
	recent := sales
	if len(recent) > recentSalesLimit {
		recent = recent[:recentSalesLimit]
	}
	stats := &SellerStats{
		ProductLimit:       models.MaxSellerProducts,
		ProductCount:       len(products),
		Products:           products,
		TotalSales:         len(sales),
		TotalRevenue:       revenue,
		RecentTransactions: recent,
	}

	// Sellers onboarded before profiles existed have no row.
	profile, err := s.store.GetSellerProfile(ctx, sellerID)
	switch {
	case err == nil:
		stats.BusinessName = profile.BusinessName
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("failed to fetch seller profile: %w", err)
	}
	return stats, nil
}
