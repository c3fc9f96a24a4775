// Package domain contains identity types shared by identity providers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// User is an authentication identity. Its ID doubles as the profile id.
type User struct {
	ID             string            `gorm:"primaryKey;type:uuid"`
	Email          string            `gorm:"column:email;not null;uniqueIndex:ux_identity_users_email"`
	PasswordHash   string            `gorm:"column:password_hash;type:text;not null"`
	EmailConfirmed bool              `gorm:"column:email_confirmed;not null"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "identity_users" }

type LinkType string

const (
	LinkTypeSignup   LinkType = "signup"
	LinkTypeRecovery LinkType = "recovery"
)

// Link is a one-time confirmation or recovery link.
type Link struct {
	Token     string    `gorm:"primaryKey"`
	UserID    string    `gorm:"column:user_id;not null"`
	Email     string    `gorm:"column:email;not null"`
	Type      LinkType  `gorm:"column:type;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	URL       string    `gorm:"-"`
}

// TableName sets the database table name.
func (Link) TableName() string { return "identity_links" }
