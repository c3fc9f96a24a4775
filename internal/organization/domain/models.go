// Package domain contains persistence models for tenants.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization represents a tenant with its own Stripe account.
type Organization struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                string       `gorm:"type:text;not null" json:"name"`
	Slug                string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	StripeSecretKey     string       `gorm:"column:stripe_secret_key;type:text" json:"-"`
	StripeWebhookSecret string       `gorm:"column:stripe_webhook_secret;type:text" json:"-"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Credentials are the unsealed Stripe secrets of an organization.
type Credentials struct {
	SecretKey     string
	WebhookSecret string
}
