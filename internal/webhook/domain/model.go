package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/stripesync/internal/organization/domain"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ProviderStripe = "stripe"

const (
	ResolutionPathMetadata = "metadata"
	ResolutionPathFallback = "fallback"
)

// EventRecord is the delivery log row used to skip replays.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID   `json:"org_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "webhook_events" }

// Resolution is the verified outcome of tenant resolution. It is read-only
// once returned.
type Resolution struct {
	Org       *organizationdomain.Organization
	SecretKey string
	Event     stripe.Event
	Path      string
}

// Event is what a routine receives: the verified event bound to its tenant.
type Event struct {
	OrgID     snowflake.ID
	SecretKey string
	Stripe    stripe.Event
}

func (e *Event) Type() string {
	if e == nil {
		return ""
	}
	return string(e.Stripe.Type)
}

// Object returns the raw data.object of the event.
func (e *Event) Object() []byte {
	if e == nil || e.Stripe.Data == nil {
		return nil
	}
	return e.Stripe.Data.Raw
}

// OccurredAt is the event creation time in UTC.
func (e *Event) OccurredAt() time.Time {
	if e == nil {
		return time.Time{}
	}
	return time.Unix(e.Stripe.Created, 0).UTC()
}

type HandlerFunc func(ctx context.Context, event *Event) error

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type Service interface {
	// Ingest verifies, deduplicates and reconciles one webhook delivery.
	Ingest(ctx context.Context, payload []byte, signature string) (Outcome, error)
}
