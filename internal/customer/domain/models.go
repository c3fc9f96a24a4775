package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer links a Stripe customer to a provisioned identity.
type Customer struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;index" json:"organization_id"`
	StripeCustomerID string       `gorm:"column:stripe_customer_id;not null" json:"stripe_customer_id"`
	UserID           string       `gorm:"column:user_id;not null" json:"user_id"`
	TempPassword     *string      `gorm:"column:temp_password" json:"-"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
