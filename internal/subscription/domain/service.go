package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/reconcile"
)

type UpsertRequest struct {
	OrgID                snowflake.ID
	StripeSubscriptionID string
	StripeCustomerID     string
	UserID               string
	Status               string
	PriceID              string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	CancelledAt          *time.Time
	Metadata             map[string]string
	SourceUpdatedAt      time.Time
}

type CancelRequest struct {
	OrgID                snowflake.ID
	StripeSubscriptionID string
	StripeCustomerID     string
	CancelledAt          time.Time
	SourceUpdatedAt      time.Time
}

type SetStatusRequest struct {
	OrgID                snowflake.ID
	StripeSubscriptionID string
	Status               string
	SourceUpdatedAt      time.Time
}

type Service interface {
	// Upsert applies the subscription state unless a newer event was
	// already applied.
	Upsert(ctx context.Context, req UpsertRequest) (reconcile.Outcome, error)
	// Cancel marks the subscription cancelled, inserting it when unknown.
	// Rows that are already cancelled are left untouched.
	Cancel(ctx context.Context, req CancelRequest) (reconcile.Outcome, error)
	// SetStatus changes the status of a known subscription under the same
	// ordering guard as Upsert.
	SetStatus(ctx context.Context, req SetStatusRequest) (reconcile.Outcome, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTimestamp    = errors.New("invalid_timestamp")
)
