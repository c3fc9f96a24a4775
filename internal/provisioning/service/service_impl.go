package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/stripesync/internal/clock"
	identitydomain "github.com/smallbiznis/stripesync/internal/identity/domain"
	"github.com/smallbiznis/stripesync/internal/identity/password"
	"github.com/smallbiznis/stripesync/internal/observability/metrics"
	"github.com/smallbiznis/stripesync/internal/provisioning/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	pathExisting = "existing"
	pathCreated  = "created"
	pathSignUp   = "signup"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Identity identitydomain.Provider
	Clock    clock.Clock      `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	identity identitydomain.Provider
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("provisioning.service"),
		repo:     p.Repo,
		identity: p.Identity,
		clock:    c,
		metrics:  p.Metrics,
	}
}

// EnsureUser returns the identity for an email, creating the identity and its
// profile when missing. Repeated calls converge on the same identity id.
func (s *Service) EnsureUser(ctx context.Context, req domain.EnsureUserRequest) (domain.Result, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return domain.Result{}, domain.ErrInvalidEmail
	}
	displayName := strings.TrimSpace(req.DisplayName)

	existing, err := s.identity.LookupByEmail(ctx, email)
	switch {
	case err == nil:
		return s.existing(ctx, req, existing, displayName)
	case !errors.Is(err, identitydomain.ErrUserNotFound):
		s.log.Warn("identity lookup failed, attempting create", zap.Error(err))
	}

	tempPassword, err := password.Temporary()
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrProvisioningFailed, err)
	}

	metadata := map[string]any{
		"display_name": displayName,
		"org_id":       req.OrgID.String(),
	}
	path := pathCreated
	user, err := s.identity.CreateUser(ctx, identitydomain.CreateUserRequest{
		Email:          email,
		Password:       tempPassword,
		EmailConfirmed: true,
		Metadata:       metadata,
	})
	if err != nil {
		s.log.Warn("privileged create failed, falling back to sign up", zap.Error(err))
		path = pathSignUp
		user, err = s.identity.SignUp(ctx, identitydomain.SignUpRequest{
			Email:    email,
			Password: tempPassword,
			Metadata: metadata,
		})
		if errors.Is(err, identitydomain.ErrUserExists) {
			existing, lookupErr := s.identity.LookupByEmail(ctx, email)
			if lookupErr != nil {
				return domain.Result{}, fmt.Errorf("%w: relookup: %v", domain.ErrProvisioningFailed, lookupErr)
			}
			return s.existing(ctx, req, existing, displayName)
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrProvisioningFailed, err)
		}
	}

	if err := s.ensureProfile(ctx, req, user, displayName); err != nil {
		return domain.Result{}, err
	}
	s.metrics.RecordUserProvisioned(ctx, path)
	s.sendSignupLink(ctx, email, tempPassword)

	s.log.Info("user provisioned", zap.String("user_id", user.ID), zap.String("org_id", req.OrgID.String()), zap.String("path", path))
	return domain.Result{UserID: user.ID, TempPassword: tempPassword, Created: true}, nil
}

func (s *Service) existing(ctx context.Context, req domain.EnsureUserRequest, user *identitydomain.User, displayName string) (domain.Result, error) {
	if err := s.ensureProfile(ctx, req, user, displayName); err != nil {
		return domain.Result{}, err
	}
	s.metrics.RecordUserProvisioned(ctx, pathExisting)
	return domain.Result{UserID: user.ID}, nil
}

func (s *Service) ensureProfile(ctx context.Context, req domain.EnsureUserRequest, user *identitydomain.User, displayName string) error {
	now := s.clock.Now()
	profile := &domain.Profile{
		ID:          user.ID,
		OrgID:       req.OrgID,
		Email:       user.Email,
		DisplayName: displayName,
		Role:        domain.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.repo.InsertIfAbsent(ctx, s.db, profile)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if created {
		s.log.Debug("profile created", zap.String("user_id", user.ID))
	}
	return nil
}

// sendSignupLink only logs the link. Delivery is handled outside this service.
func (s *Service) sendSignupLink(ctx context.Context, email, tempPassword string) {
	link, err := s.identity.GenerateLink(ctx, identitydomain.GenerateLinkRequest{
		Type:     identitydomain.LinkTypeSignup,
		Email:    email,
		Password: tempPassword,
	})
	if err != nil {
		s.log.Warn("generate signup link failed", zap.Error(err))
		s.metrics.RecordSecondaryFailure(ctx, "generate_link")
		return
	}
	s.log.Debug("signup link generated", zap.String("user_id", link.UserID), zap.Time("expires_at", link.ExpiresAt))
}
