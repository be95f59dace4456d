package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CommissionType string
type CommissionStatus string

const (
	CommissionSeller         CommissionType = "seller"
	CommissionAffiliate      CommissionType = "affiliate"
	CommissionAdminDirect    CommissionType = "admin_direct"
	CommissionAdminAffiliate CommissionType = "admin_affiliate"
)

// pending -> submitted -> paid | failed. Pending and failed rows are payable.
const (
	CommissionPending   CommissionStatus = "pending"
	CommissionSubmitted CommissionStatus = "submitted"
	CommissionPaid      CommissionStatus = "paid"
	CommissionFailed    CommissionStatus = "failed"
)

// PayableCommissionStatuses are the statuses the distributor may act on.
var PayableCommissionStatuses = []CommissionStatus{CommissionPending, CommissionFailed}

type Commission struct {
	ID                string           `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID     string           `gorm:"type:uuid;not null;index;uniqueIndex:idx_commission_tx_type" json:"transaction_id"`
	RecipientID       string           `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Amount            decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	CommissionType    CommissionType   `gorm:"type:varchar(20);not null;uniqueIndex:idx_commission_tx_type" json:"commission_type"`
	Status            CommissionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TransferReference *string          `gorm:"uniqueIndex" json:"transfer_reference,omitempty"`
	TransferCode      string           `json:"transfer_code,omitempty"`
	PayoutAttempts    int              `gorm:"not null;default:0" json:"payout_attempts"`
	FailureReason     string           `gorm:"type:text" json:"failure_reason,omitempty"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (Commission) TableName() string {
	return "commissions"
}

func (c *Commission) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CommissionPending
	}
	return nil
}

func (c *Commission) IsPayable() bool {
	return c.Status == CommissionPending || c.Status == CommissionFailed
}
