package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/lock"
	"github.com/smallbiznis/stripesync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stripesync/internal/observability/metrics"
	"github.com/smallbiznis/stripesync/internal/observability/tracing"
	"github.com/smallbiznis/stripesync/internal/webhook/dispatcher"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/resolver"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           domain.Repository
	Resolver       *resolver.Resolver
	Dispatcher     *dispatcher.Dispatcher
	Locker         *lock.EventLocker          `optional:"true"`
	Clock          clock.Clock                `optional:"true"`
	Metrics        *obsmetrics.Metrics        `optional:"true"`
	WebhookMetrics *obsmetrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	resolver       *resolver.Resolver
	dispatcher     *dispatcher.Dispatcher
	locker         *lock.EventLocker
	clock          clock.Clock
	metrics        *obsmetrics.Metrics
	webhookMetrics *obsmetrics.WebhookMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("webhook.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		resolver:       p.Resolver,
		dispatcher:     p.Dispatcher,
		locker:         p.Locker,
		clock:          c,
		metrics:        p.Metrics,
		webhookMetrics: p.WebhookMetrics,
	}
}

func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) (outcome domain.Outcome, err error) {
	started := time.Now()
	eventType := ""
	ctx, span := tracing.StartSpan(ctx, "webhook.ingest")
	defer func() {
		label := metricOutcome(outcome, err)
		s.webhookMetrics.ObserveEvent(eventType, label, time.Since(started))
		s.metrics.RecordEventProcessed(ctx, eventType, label)
		if label == obsmetrics.OutcomeFailed {
			s.webhookMetrics.IncFailure(eventType, err)
		}
		span.SetAttributes(attribute.String("webhook.event_type", eventType), attribute.String("webhook.outcome", label))
		if err != nil && label == obsmetrics.OutcomeFailed {
			span.RecordError(tracing.SafeError(err))
		}
		span.End()
	}()

	if strings.TrimSpace(signature) == "" {
		return "", domain.ErrMissingSignature
	}

	res, err := s.resolver.Resolve(ctx, payload, signature)
	if err != nil {
		return "", err
	}
	eventType = string(res.Event.Type)
	s.webhookMetrics.IncResolution(res.Path)

	ctx = logger.WithOrgID(ctx, res.Org.ID.String())
	ctx = logger.WithEventID(ctx, res.Event.ID)
	log := logger.WithContext(ctx, s.log).With(zap.String("event_type", eventType))

	now := s.clock.Now()
	received := domain.EventRecord{
		ID:              s.genID.Generate(),
		OrgID:           res.Org.ID,
		Provider:        domain.ProviderStripe,
		ProviderEventID: res.Event.ID,
		EventType:       eventType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return "", fmt.Errorf("insert webhook event: %w", err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, domain.ProviderStripe, res.Event.ID)
		if err != nil {
			return "", fmt.Errorf("find webhook event: %w", err)
		}
		if stored == nil {
			return "", domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			log.Debug("event already processed")
			return domain.OutcomeDuplicate, domain.ErrEventAlreadyProcessed
		}
	}

	release, acquired, err := s.locker.Acquire(ctx, res.Event.ID)
	if err != nil {
		return "", fmt.Errorf("acquire event lock: %w", err)
	}
	if !acquired {
		log.Info("event is being processed elsewhere")
		return "", domain.ErrEventInFlight
	}
	defer release(context.WithoutCancel(ctx))

	event := &domain.Event{OrgID: res.Org.ID, SecretKey: res.SecretKey, Stripe: res.Event}
	handled, err := s.dispatcher.Dispatch(ctx, event)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidEvent) {
			log.Error("event processing failed", zap.Error(err))
			return "", err
		}
		// Redelivery carries the same content, so the event is settled here.
		log.Warn("event content rejected", zap.Error(err))
		handled = false
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return "", fmt.Errorf("mark webhook event processed: %w", err)
	}

	if !handled {
		log.Debug("event type not handled")
		return domain.OutcomeIgnored, nil
	}
	log.Info("event processed", zap.String("resolution", res.Path))
	return domain.OutcomeProcessed, nil
}

func metricOutcome(outcome domain.Outcome, err error) string {
	switch {
	case errors.Is(err, domain.ErrEventAlreadyProcessed):
		return obsmetrics.OutcomeDuplicate
	case errors.Is(err, domain.ErrEventInFlight):
		return obsmetrics.OutcomeInFlight
	case errors.Is(err, domain.ErrMissingSignature),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrNoTenantResolved),
		errors.Is(err, domain.ErrTenantMisconfigured),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrTenantMismatch):
		return obsmetrics.OutcomeRejected
	case err != nil:
		return obsmetrics.OutcomeFailed
	case outcome == domain.OutcomeIgnored:
		return obsmetrics.OutcomeIgnored
	default:
		return obsmetrics.OutcomeProcessed
	}
}
