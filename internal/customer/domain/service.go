package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type EnsureCustomerRequest struct {
	OrgID            snowflake.ID
	StripeCustomerID string
	Email            string
	Name             string
}

type Service interface {
	GetByStripeID(ctx context.Context, orgID snowflake.ID, stripeCustomerID string) (*Customer, error)
	// Ensure returns the existing customer or provisions the identity and
	// inserts a new one. created is false when the row already existed.
	Ensure(ctx context.Context, req EnsureCustomerRequest) (customer *Customer, created bool, err error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrMissingEmail        = errors.New("missing_email")
	ErrNotFound            = errors.New("not_found")
)
