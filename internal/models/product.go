package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxSellerProducts is the hard cap enforced by the catalog on Seller.ProductCount.
const MaxSellerProducts = 30

// Product is owned by the catalog; settlement only reads price and seller.
type Product struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID     string          `gorm:"type:uuid;not null;index" json:"seller_id"`
	Name         string          `gorm:"not null" json:"name"`
	BusinessName string          `json:"business_name"`
	Description  string          `gorm:"type:text" json:"description,omitempty"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	ImageURL     string          `gorm:"type:text" json:"image_url,omitempty"`
	IsActive     bool            `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Seller is the seller profile kept alongside the user row. Product create
// and delete maintain ProductCount.
type Seller struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	BusinessName string    `json:"business_name"`
	ProductCount int       `gorm:"not null;default:0;check:product_count <= 30" json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Seller) TableName() string {
	return "sellers"
}

func (s *Seller) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
