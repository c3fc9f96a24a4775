package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const RoleUser = "user"

// Profile is the application-side record of an identity. ID equals the
// identity user id.
type Profile struct {
	ID          string       `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"column:org_id" json:"organization_id"`
	Email       string       `gorm:"not null" json:"email"`
	DisplayName string       `gorm:"column:display_name" json:"display_name"`
	Role        string       `gorm:"not null;default:user" json:"role"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
