// Package local implements the identity provider on top of the application
// database.
package local

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/config"
	"github.com/smallbiznis/stripesync/internal/identity/domain"
	"github.com/smallbiznis/stripesync/internal/identity/password"
	dbpkg "github.com/smallbiznis/stripesync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	linkTTL           = 24 * time.Hour
	minPasswordLength = 8
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock `optional:"true"`
}

type Provider struct {
	db        *gorm.DB
	log       *zap.Logger
	publicURL string
	clock     clock.Clock
}

func New(p Params) domain.Provider {
	return NewProvider(p.DB, p.Log, p.Cfg.PublicURL, p.Clock)
}

func NewProvider(db *gorm.DB, log *zap.Logger, publicURL string, c clock.Clock) *Provider {
	if c == nil {
		c = clock.System()
	}
	return &Provider{
		db:        db,
		log:       log.Named("identity.local"),
		publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/"),
		clock:     c,
	}
}

func (p *Provider) LookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, domain.ErrInvalidEmail
	}

	var user domain.User
	err := p.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	return &user, nil
}

// CreateUser is the privileged path and may create pre-confirmed users.
func (p *Provider) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	return p.insert(ctx, req.Email, req.Password, req.EmailConfirmed, req.Metadata)
}

// SignUp always creates an unconfirmed user.
func (p *Provider) SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.User, error) {
	return p.insert(ctx, req.Email, req.Password, false, req.Metadata)
}

func (p *Provider) GenerateLink(ctx context.Context, req domain.GenerateLinkRequest) (*domain.Link, error) {
	switch req.Type {
	case domain.LinkTypeSignup, domain.LinkTypeRecovery:
	default:
		return nil, domain.ErrInvalidRequest
	}

	user, err := p.LookupByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if req.Password != "" && !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidRequest
	}

	now := p.clock.Now()
	token, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate link token: %w", err)
	}
	link := &domain.Link{
		Token:     token.String(),
		UserID:    user.ID,
		Email:     user.Email,
		Type:      req.Type,
		ExpiresAt: now.Add(linkTTL),
		CreatedAt: now,
	}
	if err := p.db.WithContext(ctx).Create(link).Error; err != nil {
		return nil, fmt.Errorf("store link: %w", err)
	}
	link.URL = p.confirmURL(link.Token)
	return link, nil
}

func (p *Provider) insert(ctx context.Context, email, plain string, confirmed bool, metadata map[string]any) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	if len(plain) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	hash, err := password.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := p.clock.Now()
	user := &domain.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: confirmed,
		Metadata:       datatypes.JSONMap(metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	p.log.Debug("identity created", zap.String("user_id", user.ID), zap.Bool("email_confirmed", confirmed))
	return user, nil
}

func (p *Provider) confirmURL(token string) string {
	return p.publicURL + "/auth/confirm?token=" + url.QueryEscape(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
