package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// MinimumWithdrawal is the smallest amount an affiliate may request, in major units.
var MinimumWithdrawal = decimal.NewFromInt(10)

type Withdrawal struct {
	ID                string           `gorm:"type:uuid;primaryKey" json:"id"`
	AffiliateID       string           `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	Amount            decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status            WithdrawalStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TransferReference *string          `gorm:"uniqueIndex" json:"transfer_reference,omitempty"`
	TransferCode      string           `json:"transfer_code,omitempty"`
	Notes             string           `gorm:"type:text" json:"notes,omitempty"`
	RequestedAt       time.Time        `gorm:"not null" json:"requested_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`

	Affiliate *User `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}

func (w *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = WithdrawalPending
	}
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now()
	}
	return nil
}
