package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Product mirrors a Stripe product.
type Product struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID      `json:"organization_id" gorm:"not null;index"`
	StripeProductID string            `json:"stripe_product_id" gorm:"column:stripe_product_id;not null"`
	Name            string            `json:"name" gorm:"not null"`
	Slug            string            `json:"slug" gorm:"not null"`
	Description     string            `json:"description,omitempty"`
	Active          bool              `json:"active" gorm:"not null;default:true"`
	DefaultPriceID  string            `json:"default_price_id,omitempty" gorm:"column:default_price_id"`
	Images          pq.StringArray    `json:"images" gorm:"type:text[]"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	SourceUpdatedAt time.Time         `json:"-" gorm:"column:source_updated_at;not null"`
	DeletedAt       *time.Time        `json:"deleted_at,omitempty" gorm:"column:deleted_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
