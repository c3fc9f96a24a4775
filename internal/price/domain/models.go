package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PriceType string

var (
	OneTime   PriceType = "one_time"
	Recurring PriceType = "recurring"
)

// Price mirrors a Stripe price. UnitAmount is in currency units.
type Price struct {
	ID                     snowflake.ID        `json:"id" gorm:"primaryKey"`
	OrgID                  snowflake.ID        `json:"organization_id" gorm:"not null;index"`
	StripePriceID          string              `json:"stripe_price_id" gorm:"column:stripe_price_id;not null"`
	StripeProductID        string              `json:"stripe_product_id" gorm:"column:stripe_product_id"`
	Active                 bool                `json:"active" gorm:"not null;default:true"`
	Currency               string              `json:"currency" gorm:"not null"`
	UnitAmount             decimal.NullDecimal `json:"unit_amount" gorm:"type:numeric(20,4)"`
	Type                   PriceType           `json:"type" gorm:"type:text;not null"`
	RecurringInterval      *string             `json:"recurring_interval,omitempty" gorm:"column:recurring_interval"`
	RecurringIntervalCount *int64              `json:"recurring_interval_count,omitempty" gorm:"column:recurring_interval_count"`
	Nickname               string              `json:"nickname,omitempty"`
	Metadata               datatypes.JSONMap   `json:"metadata,omitempty" gorm:"type:jsonb"`
	SourceUpdatedAt        time.Time           `json:"-" gorm:"column:source_updated_at;not null"`
	DeletedAt              *time.Time          `json:"deleted_at,omitempty" gorm:"column:deleted_at"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

func (Price) TableName() string { return "prices" }
