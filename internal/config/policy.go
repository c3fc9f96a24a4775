package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WebhookPolicy controls how strictly events are bound to a tenant.
type WebhookPolicy struct {
	// EnforceTenantMatch rejects events whose verified payload names a different tenant
	// than the one whose secret verified it.
	EnforceTenantMatch bool `mapstructure:"enforce_tenant_match"`
	// FallbackEventTypes lists event types that may fall back to the first organization
	// with a webhook secret when no tenant id is present. "*" allows every type.
	FallbackEventTypes []string `mapstructure:"fallback_event_types"`
}

// AllowsFallback reports whether the event type may use the first-organization fallback.
func (p WebhookPolicy) AllowsFallback(eventType string) bool {
	eventType = strings.TrimSpace(eventType)
	for _, allowed := range p.FallbackEventTypes {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, eventType) {
			return true
		}
	}
	return false
}

func DefaultWebhookPolicy() WebhookPolicy {
	return WebhookPolicy{
		EnforceTenantMatch: true,
		FallbackEventTypes: []string{"*"},
	}
}

type WebhookPolicyHolder struct {
	current atomic.Value // holds WebhookPolicy
}

// NewStaticWebhookPolicy returns a holder that never reloads.
func NewStaticWebhookPolicy(policy WebhookPolicy) *WebhookPolicyHolder {
	holder := &WebhookPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewWebhookPolicyHolder() (*WebhookPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("webhook")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stripesync/config")
	v.AddConfigPath("/etc/stripesync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STRIPESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWebhookPolicy()
	v.SetDefault("webhook.enforce_tenant_match", defaults.EnforceTenantMatch)
	v.SetDefault("webhook.fallback_event_types", defaults.FallbackEventTypes)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var policy WebhookPolicy
	if err := v.UnmarshalKey("webhook", &policy); err != nil {
		return nil, err
	}
	if err := validateWebhookPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticWebhookPolicy(policy)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated WebhookPolicy
		if err := v.UnmarshalKey("webhook", &updated); err != nil {
			log.Printf("[webhook-policy] reload failed: %v", err)
			return
		}
		if err := validateWebhookPolicy(updated); err != nil {
			log.Printf("[webhook-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[webhook-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *WebhookPolicyHolder) Get() WebhookPolicy {
	if h == nil {
		return DefaultWebhookPolicy()
	}
	return h.current.Load().(WebhookPolicy)
}

func validateWebhookPolicy(policy WebhookPolicy) error {
	for _, eventType := range policy.FallbackEventTypes {
		if strings.TrimSpace(eventType) == "" {
			return errors.New("webhook.fallback_event_types cannot contain empty entries")
		}
	}
	return nil
}
