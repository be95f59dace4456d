package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Transaction is a buyer's purchase of one product. PaymentStatus only ever
// moves pending -> completed, and PaymentReference never changes once set.
type Transaction struct {
	ID               string          `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID        string          `gorm:"type:uuid;not null;index" json:"product_id"`
	CustomerName     string          `gorm:"not null" json:"customer_name"`
	CustomerEmail    string          `gorm:"not null" json:"customer_email"`
	CustomerPhone    string          `gorm:"not null" json:"customer_phone"`
	ShippingAddress  string          `gorm:"type:text" json:"shipping_address"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaymentStatus    PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	PaymentReference string          `gorm:"uniqueIndex;not null;<-:create" json:"payment_reference"`
	AffiliateID      *string         `gorm:"type:uuid;index" json:"affiliate_id,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Product     *Product     `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Commissions []Commission `gorm:"foreignKey:TransactionID" json:"commissions,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *Transaction) HasAffiliate() bool {
	return t.AffiliateID != nil && *t.AffiliateID != ""
}

func (t *Transaction) IsCompleted() bool {
	return t.PaymentStatus == PaymentCompleted
}
