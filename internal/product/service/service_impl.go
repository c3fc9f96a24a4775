package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/product/domain"
	"github.com/smallbiznis/stripesync/internal/reconcile"
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
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (reconcile.Outcome, error) {
	if req.OrgID == 0 {
		return "", domain.ErrInvalidOrganization
	}
	stripeID := strings.TrimSpace(req.StripeProductID)
	if stripeID == "" {
		return "", domain.ErrInvalidID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", domain.ErrInvalidName
	}
	if req.SourceUpdatedAt.IsZero() {
		return "", domain.ErrInvalidTimestamp
	}

	images := pq.StringArray{}
	for _, img := range req.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	var outcome reconcile.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStripeID(ctx, tx, req.OrgID, stripeID, true)
		if err != nil {
			return fmt.Errorf("find product: %w", err)
		}

		now := s.clock.Now()
		if existing == nil {
			product := &domain.Product{
				ID:              s.genID.Generate(),
				OrgID:           req.OrgID,
				StripeProductID: stripeID,
				Name:            name,
				Slug:            slug.Make(name),
				Description:     req.Description,
				Active:          req.Active,
				DefaultPriceID:  req.DefaultPriceID,
				Images:          images,
				Metadata:        metadata,
				SourceUpdatedAt: req.SourceUpdatedAt.UTC(),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			created, err := s.repo.InsertIfAbsent(ctx, tx, product)
			if err != nil {
				return fmt.Errorf("insert product: %w", err)
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

		existing.Name = name
		existing.Slug = slug.Make(name)
		existing.Description = req.Description
		existing.Active = req.Active
		existing.DefaultPriceID = req.DefaultPriceID
		existing.Images = images
		existing.Metadata = metadata
		existing.SourceUpdatedAt = req.SourceUpdatedAt.UTC()
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		outcome = reconcile.OutcomeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Info("product reconciled",
		zap.String("org_id", req.OrgID.String()),
		zap.String("stripe_product_id", stripeID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// Delete tombstones the product. Deleted products are never revived: later
// updates for the same id are reported as stale or unchanged.
func (s *Service) Delete(ctx context.Context, req domain.DeleteRequest) (reconcile.Outcome, error) {
	if req.OrgID == 0 {
		return "", domain.ErrInvalidOrganization
	}
	stripeID := strings.TrimSpace(req.StripeProductID)
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
			return fmt.Errorf("find product: %w", err)
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
			return fmt.Errorf("delete product: %w", err)
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

	s.log.Info("product deleted",
		zap.String("org_id", req.OrgID.String()),
		zap.String("stripe_product_id", stripeID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
