package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/reconcile"
)

type UpsertRequest struct {
	OrgID                  snowflake.ID
	StripePriceID          string
	StripeProductID        string
	Active                 bool
	Currency               string
	UnitAmountMinor        *int64
	Type                   string
	RecurringInterval      string
	RecurringIntervalCount int64
	Nickname               string
	Metadata               map[string]string
	SourceUpdatedAt        time.Time
}

type DeleteRequest struct {
	OrgID           snowflake.ID
	StripePriceID   string
	SourceUpdatedAt time.Time
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (reconcile.Outcome, error)
	Delete(ctx context.Context, req DeleteRequest) (reconcile.Outcome, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidTimestamp    = errors.New("invalid_timestamp")
)
