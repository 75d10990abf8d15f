package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the store catalog.
type Product struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string          `json:"name" gorm:"type:varchar(100)"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(12,2)"`
	Stock        int             `json:"stock"`
	ThumbnailURL string          `json:"thumbnail_url"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductSummary is the catalog view embedded in order lines.
type ProductSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// TableName maps ProductSummary onto the products table.
func (ProductSummary) TableName() string { return "products" }
