// Package domain contains the reconciled view of Stripe subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

// Subscription mirrors a Stripe subscription. SourceUpdatedAt is the creation
// time of the newest Stripe event applied to the row.
type Subscription struct {
	ID                   snowflake.ID      `gorm:"primaryKey"`
	OrgID                snowflake.ID      `gorm:"not null;index"`
	StripeSubscriptionID string            `gorm:"column:stripe_subscription_id;not null"`
	StripeCustomerID     string            `gorm:"column:stripe_customer_id"`
	UserID               *string           `gorm:"column:user_id"`
	Status               string            `gorm:"type:text;not null"`
	PriceID              string            `gorm:"column:price_id"`
	CurrentPeriodStart   *time.Time        `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time        `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool              `gorm:"not null;default:false"`
	CancelledAt          *time.Time        `gorm:"column:cancelled_at"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb"`
	SourceUpdatedAt      time.Time         `gorm:"column:source_updated_at;not null"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
