package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/price/domain"
	"github.com/smallbiznis/stripesync/internal/reconcile"
	"github.com/smallbiznis/stripesync/pkg/money"
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
		log:   p.Log.Named("price.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (reconcile.Outcome, error) {
	if req.OrgID == 0 {
		return "", domain.ErrInvalidOrganization
	}
	stripeID := strings.TrimSpace(req.StripePriceID)
	if stripeID == "" {
		return "", domain.ErrInvalidID
	}
	currency := money.NormalizeCurrency(req.Currency)
	if currency == "" {
		return "", domain.ErrInvalidCurrency
	}
	if req.SourceUpdatedAt.IsZero() {
		return "", domain.ErrInvalidTimestamp
	}

	next := domain.Price{
		OrgID:           req.OrgID,
		StripePriceID:   stripeID,
		StripeProductID: strings.TrimSpace(req.StripeProductID),
		Active:          req.Active,
		Currency:        currency,
		Type:            priceType(req.Type, req.RecurringInterval),
		Nickname:        req.Nickname,
		Metadata:        datatypes.JSONMap{},
		SourceUpdatedAt: req.SourceUpdatedAt.UTC(),
	}
	if req.UnitAmountMinor != nil {
		next.UnitAmount = decimal.NewNullDecimal(money.FromMinor(*req.UnitAmountMinor, currency))
	}
	if interval := strings.TrimSpace(req.RecurringInterval); interval != "" {
		count := req.RecurringIntervalCount
		if count <= 0 {
			count = 1
		}
		next.RecurringInterval = &interval
		next.RecurringIntervalCount = &count
	}
	for k, v := range req.Metadata {
		next.Metadata[k] = v
	}

	var outcome reconcile.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStripeID(ctx, tx, req.OrgID, stripeID, true)
		if err != nil {
			return fmt.Errorf("find price: %w", err)
		}

		now := s.clock.Now()
		if existing == nil {
			next.ID = s.genID.Generate()
			next.CreatedAt = now
			next.UpdatedAt = now
			created, err := s.repo.InsertIfAbsent(ctx, tx, &next)
			if err != nil {
				return fmt.Errorf("insert price: %w", err)
			}
			outcome = reconcile.OutcomeUnchanged
			if created {
				outcome = reconcile.OutcomeCreated
			}
			return nil
		}

		if reconcile.IsStale(req.SourceUpdatedAt, existing.SourceUpdatedAt) {
			outcome = reconcile.OutcomeStale
			return nil
		}
		if existing.DeletedAt != nil {
			outcome = reconcile.OutcomeUnchanged
			return nil
		}

		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, &next); err != nil {
			return fmt.Errorf("update price: %w", err)
		}
		outcome = reconcile.OutcomeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Info("price reconciled",
		zap.String("org_id", req.OrgID.String()),
		zap.String("stripe_price_id", stripeID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// Delete tombstones the price. Deleted prices are never revived: later
// updates for the same id are reported as stale or unchanged.
func (s *Service) Delete(ctx context.Context, req domain.DeleteRequest) (reconcile.Outcome, error) {
	if req.OrgID == 0 {
		return "", domain.ErrInvalidOrganization
	}
	stripeID := strings.TrimSpace(req.StripePriceID)
	if stripeID == "" {
		return "", domain.ErrInvalidID
	}
	if req.SourceUpdatedAt.IsZero() {
		return "", domain.ErrInvalidTimestamp
	}

	var outcome reconcile.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStripeID(ctx, tx, req.OrgID, stripeID, true)
		if err != nil {
			return fmt.Errorf("find price: %w", err)
		}
		switch {
		case existing == nil, existing.DeletedAt != nil:
			outcome = reconcile.OutcomeMissing
			return nil
		case reconcile.IsStale(req.SourceUpdatedAt, existing.SourceUpdatedAt):
			outcome = reconcile.OutcomeStale
			return nil
		}
		deleted, err := s.repo.MarkDeleted(ctx, tx, req.OrgID, existing.ID, req.SourceUpdatedAt.UTC(), s.clock.Now())
		if err != nil {
			return fmt.Errorf("delete price: %w", err)
		}
		outcome = reconcile.OutcomeMissing
		if deleted {
			outcome = reconcile.OutcomeDeleted
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Info("price deleted",
		zap.String("org_id", req.OrgID.String()),
		zap.String("stripe_price_id", stripeID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func priceType(raw, interval string) domain.PriceType {
	switch strings.TrimSpace(raw) {
	case string(domain.Recurring):
		return domain.Recurring
	case string(domain.OneTime):
		return domain.OneTime
	}
	if strings.TrimSpace(interval) != "" {
		return domain.Recurring
	}
	return domain.OneTime
}
