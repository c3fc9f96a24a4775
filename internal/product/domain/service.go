package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/reconcile"
)

type UpsertRequest struct {
	OrgID           snowflake.ID
	StripeProductID string
	Name            string
	Description     string
	Active          bool
	DefaultPriceID  string
	Images          []string
	Metadata        map[string]string
	SourceUpdatedAt time.Time
}

type DeleteRequest struct {
	OrgID           snowflake.ID
	StripeProductID string
	SourceUpdatedAt time.Time
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (reconcile.Outcome, error)
	Delete(ctx context.Context, req DeleteRequest) (reconcile.Outcome, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidTimestamp    = errors.New("invalid_timestamp")
)
