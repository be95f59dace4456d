package services

import (
	"time"

	"github.com/shopspring/decimal"

	"Marketplace/internal/models"
)

// Commission rates as fractions of the transaction amount.
var (
	SellerRate         = decimal.RequireFromString("0.90")
	AffiliateRate      = decimal.RequireFromString("0.08")
	AdminDirectRate    = decimal.RequireFromString("0.10")
	AdminAffiliateRate = decimal.RequireFromString("0.02")
)

// Share is one recipient's cut of a transaction.
type Share struct {
	RecipientID string
	Type        models.CommissionType
	Amount      decimal.Decimal
}

// ComputeSplit divides amount between seller, affiliate and platform.
//
// Seller and affiliate shares are rounded half-up to the pesewa on their own;
// the platform share takes whatever is left, so the shares always add up to
// the amount exactly. The platform share cannot go negative: the two rounded
// shares sum to at most 0.98*amount + 0.01, which never exceeds amount for a
// positive amount in whole pesewas.
func ComputeSplit(amount decimal.Decimal, sellerID, adminID string, affiliateID *string) []Share {
	total := amount.Round(2)
	seller := total.Mul(SellerRate).Round(2)

	if affiliateID == nil || *affiliateID == "" {
		return []Share{
			{RecipientID: adminID, Type: models.CommissionAdminDirect, Amount: total.Sub(seller)},
			{RecipientID: sellerID, Type: models.CommissionSeller, Amount: seller},
		}
	}

	affiliate := total.Mul(AffiliateRate).Round(2)
	return []Share{
		{RecipientID: *affiliateID, Type: models.CommissionAffiliate, Amount: affiliate},
		{RecipientID: adminID, Type: models.CommissionAdminAffiliate, Amount: total.Sub(seller).Sub(affiliate)},
		{RecipientID: sellerID, Type: models.CommissionSeller, Amount: seller},
	}
}

// sharesToCommissions keeps every share so the rows still sum to the
// transaction amount. A share that rounds to zero has nothing to transfer
// and is stored as already paid.
func sharesToCommissions(transactionID string, shares []Share, at time.Time) []models.Commission {
	commissions := make([]models.Commission, 0, len(shares))
	for _, s := range shares {
		c := models.Commission{
			TransactionID:  transactionID,
			RecipientID:    s.RecipientID,
			Amount:         s.Amount,
			CommissionType: s.Type,
			Status:         models.CommissionPending,
		}
		if !s.Amount.IsPositive() {
			paidAt := at
			c.Status = models.CommissionPaid
			c.PaidAt = &paidAt
		}
		commissions = append(commissions, c)
	}
	return commissions
}
