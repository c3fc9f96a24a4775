package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/reconcile"
	"github.com/smallbiznis/stripesync/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (reconcile.Outcome, error) {
	stripeID, err := validate(req.OrgID, req.StripeSubscriptionID, req.SourceUpdatedAt)
	if err != nil {
		return "", err
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		return "", domain.ErrInvalidStatus
	}

	var outcome reconcile.Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStripeID(ctx, tx, req.OrgID, stripeID, true)
		if err != nil {
			return fmt.Errorf("find subscription: %w", err)
		}

		now := s.clock.Now()
		if existing == nil {
			sub := &domain.Subscription{
				ID:                   s.genID.Generate(),
				OrgID:                req.OrgID,
				StripeSubscriptionID: stripeID,
				StripeCustomerID:     strings.TrimSpace(req.StripeCustomerID),
				UserID:               optionalString(req.UserID),
				Status:               status,
				PriceID:              req.PriceID,
				CurrentPeriodStart:   req.CurrentPeriodStart,
				CurrentPeriodEnd:     req.CurrentPeriodEnd,
				CancelAtPeriodEnd:    req.CancelAtPeriodEnd,
				CancelledAt:          req.CancelledAt,
				Metadata:             toJSONMap(req.Metadata),
				SourceUpdatedAt:      req.SourceUpdatedAt.UTC(),
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			outcome, err = s.insert(ctx, tx, sub)
			return err
		}

		if reconcile.IsStale(req.SourceUpdatedAt, existing.SourceUpdatedAt) {
			outcome = reconcile.OutcomeStale
			return nil
		}
		if existing.Status == domain.StatusCancelled && status != domain.StatusCancelled {
			outcome = reconcile.OutcomeUnchanged
			return nil
		}

		existing.StripeCustomerID = orKeep(req.StripeCustomerID, existing.StripeCustomerID)
		if userID := optionalString(req.UserID); userID != nil {
			existing.UserID = userID
		}
		existing.Status = status
		existing.PriceID = orKeep(req.PriceID, existing.PriceID)
		existing.CurrentPeriodStart = req.CurrentPeriodStart
		existing.CurrentPeriodEnd = req.CurrentPeriodEnd
		existing.CancelAtPeriodEnd = req.CancelAtPeriodEnd
		existing.CancelledAt = req.CancelledAt
		existing.Metadata = toJSONMap(req.Metadata)
		existing.SourceUpdatedAt = req.SourceUpdatedAt.UTC()
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		outcome = reconcile.OutcomeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logOutcome("subscription upserted", req.OrgID, stripeID, outcome)
	return outcome, nil
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) (reconcile.Outcome, error) {
	stripeID, err := validate(req.OrgID, req.StripeSubscriptionID, req.SourceUpdatedAt)
	if err != nil {
		return "", err
	}
	cancelledAt := req.CancelledAt
	if cancelledAt.IsZero() {
		cancelledAt = req.SourceUpdatedAt
	}
	cancelledAt = cancelledAt.UTC()

	var outcome reconcile.Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStripeID(ctx, tx, req.OrgID, stripeID, true)
		if err != nil {
			return fmt.Errorf("find subscription: %w", err)
		}

		now := s.clock.Now()
		if existing == nil {
			sub := &domain.Subscription{
				ID:                   s.genID.Generate(),
				OrgID:                req.OrgID,
				StripeSubscriptionID: stripeID,
				StripeCustomerID:     strings.TrimSpace(req.StripeCustomerID),
				Status:               domain.StatusCancelled,
				CancelledAt:          &cancelledAt,
				Metadata:             datatypes.JSONMap{},
				SourceUpdatedAt:      req.SourceUpdatedAt.UTC(),
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			outcome, err = s.insert(ctx, tx, sub)
			return err
		}

		if existing.Status == domain.StatusCancelled {
			outcome = reconcile.OutcomeUnchanged
			return nil
		}

		// Cancellation is terminal, so it applies even over newer state.
		existing.Status = domain.StatusCancelled
		existing.CancelledAt = &cancelledAt
		if req.SourceUpdatedAt.After(existing.SourceUpdatedAt) {
			existing.SourceUpdatedAt = req.SourceUpdatedAt.UTC()
		}
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		outcome = reconcile.OutcomeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logOutcome("subscription cancelled", req.OrgID, stripeID, outcome)
	return outcome, nil
}

func (s *Service) SetStatus(ctx context.Context, req domain.SetStatusRequest) (reconcile.Outcome, error) {
	stripeID, err := validate(req.OrgID, req.StripeSubscriptionID, req.SourceUpdatedAt)
	if err != nil {
		return "", err
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		return "", domain.ErrInvalidStatus
	}

	var outcome reconcile.Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStripeID(ctx, tx, req.OrgID, stripeID, true)
		if err != nil {
			return fmt.Errorf("find subscription: %w", err)
		}
		switch {
		case existing == nil:
			outcome = reconcile.OutcomeMissing
			return nil
		case reconcile.IsStale(req.SourceUpdatedAt, existing.SourceUpdatedAt):
			outcome = reconcile.OutcomeStale
			return nil
		case existing.Status == domain.StatusCancelled, existing.Status == status:
			outcome = reconcile.OutcomeUnchanged
			return nil
		}

		existing.Status = status
		existing.SourceUpdatedAt = req.SourceUpdatedAt.UTC()
		existing.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		outcome = reconcile.OutcomeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logOutcome("subscription status set", req.OrgID, stripeID, outcome)
	return outcome, nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, sub *domain.Subscription) (reconcile.Outcome, error) {
	created, err := s.repo.InsertIfAbsent(ctx, tx, sub)
	if err != nil {
		return "", fmt.Errorf("insert subscription: %w", err)
	}
	if !created {
		// Same Stripe id already stored under another organization.
		s.log.Warn("subscription insert skipped on conflict",
			zap.String("org_id", sub.OrgID.String()),
			zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
		)
		return reconcile.OutcomeUnchanged, nil
	}
	return reconcile.OutcomeCreated, nil
}

func (s *Service) logOutcome(msg string, orgID snowflake.ID, stripeID string, outcome reconcile.Outcome) {
	level := s.log.Info
	if outcome == reconcile.OutcomeStale || outcome == reconcile.OutcomeMissing {
		level = s.log.Warn
	}
	level(msg,
		zap.String("org_id", orgID.String()),
		zap.String("stripe_subscription_id", stripeID),
		zap.String("outcome", string(outcome)),
	)
}

func validate(orgID snowflake.ID, stripeID string, source time.Time) (string, error) {
	if orgID == 0 {
		return "", domain.ErrInvalidOrganization
	}
	stripeID = strings.TrimSpace(stripeID)
	if stripeID == "" {
		return "", domain.ErrInvalidID
	}
	if source.IsZero() {
		return "", domain.ErrInvalidTimestamp
	}
	return stripeID, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func orKeep(value, current string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return current
}

func toJSONMap(in map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
