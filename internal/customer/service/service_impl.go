package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/customer/domain"
	provisioningdomain "github.com/smallbiznis/stripesync/internal/provisioning/domain"
	"github.com/smallbiznis/stripesync/internal/secrets"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Provisioner provisioningdomain.Service
	Sealer      *secrets.Sealer `optional:"true"`
	Clock       clock.Clock     `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	provisioner provisioningdomain.Service
	sealer      *secrets.Sealer
	clock       clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("customer.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		provisioner: p.Provisioner,
		sealer:      p.Sealer,
		clock:       c,
	}
}

func (s *Service) GetByStripeID(ctx context.Context, orgID snowflake.ID, stripeCustomerID string) (*domain.Customer, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	stripeCustomerID = strings.TrimSpace(stripeCustomerID)
	if stripeCustomerID == "" {
		return nil, domain.ErrInvalidID
	}
	customer, err := s.repo.FindByStripeID(ctx, s.db, orgID, stripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if customer == nil {
		return nil, domain.ErrNotFound
	}
	return customer, nil
}

func (s *Service) Ensure(ctx context.Context, req domain.EnsureCustomerRequest) (*domain.Customer, bool, error) {
	existing, err := s.GetByStripeID(ctx, req.OrgID, req.StripeCustomerID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, false, domain.ErrMissingEmail
	}

	user, err := s.provisioner.EnsureUser(ctx, provisioningdomain.EnsureUserRequest{
		OrgID:       req.OrgID,
		Email:       email,
		DisplayName: strings.TrimSpace(req.Name),
	})
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	customer := &domain.Customer{
		ID:               s.genID.Generate(),
		OrgID:            req.OrgID,
		StripeCustomerID: strings.TrimSpace(req.StripeCustomerID),
		UserID:           user.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if user.TempPassword != "" {
		stored, err := s.sealer.SealIfConfigured(user.TempPassword)
		if err != nil {
			return nil, false, fmt.Errorf("seal temp password: %w", err)
		}
		customer.TempPassword = &stored
	}

	created, err := s.repo.InsertIfAbsent(ctx, s.db, customer)
	if err != nil {
		return nil, false, fmt.Errorf("insert customer: %w", err)
	}
	if !created {
		current, err := s.GetByStripeID(ctx, req.OrgID, req.StripeCustomerID)
		return current, false, err
	}

	s.log.Info("customer created",
		zap.String("org_id", req.OrgID.String()),
		zap.String("stripe_customer_id", customer.StripeCustomerID),
		zap.String("user_id", customer.UserID),
	)
	return customer, true, nil
}
