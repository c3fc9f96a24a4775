package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/organization/domain"
	"github.com/smallbiznis/stripesync/internal/secrets"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Sealer *secrets.Sealer
	Clock  clock.Clock `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	sealer *secrets.Sealer
	clock  clock.Clock
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("organization.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		sealer: p.Sealer,
		clock:  c,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	org, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find organization: %w", err)
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *Service) FirstWithWebhookSecret(ctx context.Context) (*domain.Organization, error) {
	org, err := s.repo.FirstWithWebhookSecret(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("find fallback organization: %w", err)
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

// Credentials unseals both Stripe secrets. A missing or unreadable secret is
// reported as ErrMissingCredentials.
func (s *Service) Credentials(ctx context.Context, org *domain.Organization) (domain.Credentials, error) {
	if org == nil {
		return domain.Credentials{}, domain.ErrNotFound
	}
	secretKey, err := s.sealer.Open(strings.TrimSpace(org.StripeSecretKey))
	if err != nil {
		s.log.Warn("cannot unseal stripe secret key", zap.String("org_id", org.ID.String()), zap.Error(err))
		return domain.Credentials{}, domain.ErrMissingCredentials
	}
	webhookSecret, err := s.sealer.Open(strings.TrimSpace(org.StripeWebhookSecret))
	if err != nil {
		s.log.Warn("cannot unseal stripe webhook secret", zap.String("org_id", org.ID.String()), zap.Error(err))
		return domain.Credentials{}, domain.ErrMissingCredentials
	}
	if secretKey == "" || webhookSecret == "" {
		return domain.Credentials{}, domain.ErrMissingCredentials
	}
	return domain.Credentials{SecretKey: secretKey, WebhookSecret: webhookSecret}, nil
}

// EnsureOrganization creates the organization when its slug is not taken yet.
func (s *Service) EnsureOrganization(ctx context.Context, req domain.EnsureOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	orgSlug := slug.Make(name)

	existing, err := s.repo.FindBySlug(ctx, s.db, orgSlug)
	if err != nil {
		return nil, fmt.Errorf("find organization by slug: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	secretKey, err := s.sealer.SealIfConfigured(strings.TrimSpace(req.StripeSecretKey))
	if err != nil {
		return nil, err
	}
	webhookSecret, err := s.sealer.SealIfConfigured(strings.TrimSpace(req.StripeWebhookSecret))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:                  s.genID.Generate(),
		Name:                name,
		Slug:                orgSlug,
		StripeSecretKey:     secretKey,
		StripeWebhookSecret: webhookSecret,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	created, err := s.repo.Insert(ctx, s.db, org)
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	if !created {
		return s.repo.FindBySlug(ctx, s.db, orgSlug)
	}

	s.log.Info("organization bootstrapped", zap.String("org_id", org.ID.String()), zap.String("slug", orgSlug))
	return org, nil
}
