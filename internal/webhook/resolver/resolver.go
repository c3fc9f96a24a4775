// Package resolver binds an incoming Stripe delivery to exactly one
// organization and verifies its signature with that organization's secret.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/config"
	organizationdomain "github.com/smallbiznis/stripesync/internal/organization/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultTolerance = 300 * time.Second

type Params struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Orgs   organizationdomain.Service
	Policy *config.WebhookPolicyHolder `optional:"true"`
}

type Resolver struct {
	log       *zap.Logger
	orgs      organizationdomain.Service
	policy    *config.WebhookPolicyHolder
	tenantKey string
	tolerance time.Duration
}

func New(p Params) *Resolver {
	key := strings.TrimSpace(p.Cfg.Webhook.TenantMetadataKey)
	if key == "" {
		key = "organization_id"
	}
	tolerance := time.Duration(p.Cfg.Webhook.ToleranceSeconds) * time.Second
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Resolver{
		log:       p.Log.Named("webhook.resolver"),
		orgs:      p.Orgs,
		policy:    p.Policy,
		tenantKey: key,
		tolerance: tolerance,
	}
}

// Resolve finds the tenant of the payload, verifies the signature with the
// tenant's webhook secret and returns the verified event.
func (r *Resolver) Resolve(ctx context.Context, payload []byte, signature string) (*domain.Resolution, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	env.ID = strings.TrimSpace(env.ID)
	env.Type = strings.TrimSpace(env.Type)
	if env.ID == "" || env.Type == "" {
		return nil, domain.ErrInvalidPayload
	}

	policy := r.policy.Get()
	org, path, err := r.lookupOrganization(ctx, TenantFromObject(env.Data.Object, r.tenantKey), env.Type, policy)
	if err != nil {
		return nil, err
	}

	creds, err := r.orgs.Credentials(ctx, org)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrMissingCredentials) || errors.Is(err, organizationdomain.ErrNotFound) {
			return nil, domain.ErrTenantMisconfigured
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, creds.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                r.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		r.log.Debug("signature verification failed",
			zap.String("org_id", org.ID.String()),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
		return nil, domain.ErrSignatureInvalid
	}

	var object []byte
	if event.Data != nil {
		object = event.Data.Raw
	}
	for _, verified := range TenantCandidates(object, r.tenantKey) {
		if verified == org.ID.String() {
			continue
		}
		if policy.EnforceTenantMatch {
			return nil, domain.ErrTenantMismatch
		}
		r.log.Warn("verified event names a different tenant",
			zap.String("org_id", org.ID.String()),
			zap.String("event_org_id", verified),
			zap.String("event_id", event.ID),
		)
		break
	}

	return &domain.Resolution{
		Org:       org,
		SecretKey: creds.SecretKey,
		Event:     event,
		Path:      path,
	}, nil
}

func (r *Resolver) lookupOrganization(
	ctx context.Context,
	tenantID string,
	eventType string,
	policy config.WebhookPolicy,
) (*organizationdomain.Organization, string, error) {
	if tenantID != "" {
		id, err := snowflake.ParseString(tenantID)
		if err != nil || id <= 0 {
			return nil, "", domain.ErrNoTenantResolved
		}
		org, err := r.orgs.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, organizationdomain.ErrNotFound) {
				return nil, "", domain.ErrNoTenantResolved
			}
			return nil, "", err
		}
		return org, domain.ResolutionPathMetadata, nil
	}

	if !policy.AllowsFallback(eventType) {
		r.log.Warn("tenant fallback not allowed for event type", zap.String("event_type", eventType))
		return nil, "", domain.ErrNoTenantResolved
	}
	org, err := r.orgs.FirstWithWebhookSecret(ctx)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNotFound) {
			return nil, "", domain.ErrNoTenantResolved
		}
		return nil, "", err
	}
	return org, domain.ResolutionPathFallback, nil
}
