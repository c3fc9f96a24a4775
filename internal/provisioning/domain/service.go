package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type EnsureUserRequest struct {
	OrgID       snowflake.ID
	Email       string
	DisplayName string
}

// Result carries the identity id. TempPassword is set only when the identity
// was created by this call.
type Result struct {
	UserID       string
	TempPassword string
	Created      bool
}

type Service interface {
	EnsureUser(ctx context.Context, req EnsureUserRequest) (Result, error)
}

var (
	ErrProvisioningFailed = errors.New("provisioning_failed")
	ErrInvalidEmail       = errors.New("invalid_email")
)
