package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound           = errors.New("organization_not_found")
	ErrMissingCredentials = errors.New("organization_missing_credentials")
	ErrInvalidName        = errors.New("invalid_name")
)

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	FirstWithWebhookSecret(ctx context.Context) (*Organization, error)
	Credentials(ctx context.Context, org *Organization) (Credentials, error)
	EnsureOrganization(ctx context.Context, req EnsureOrganizationRequest) (*Organization, error)
}

type EnsureOrganizationRequest struct {
	Name                string
	StripeSecretKey     string
	StripeWebhookSecret string
}
