package resolver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/config"
	"github.com/smallbiznis/stripesync/internal/migration"
	organizationdomain "github.com/smallbiznis/stripesync/internal/organization/domain"
	organizationrepo "github.com/smallbiznis/stripesync/internal/organization/repository"
	organizationservice "github.com/smallbiznis/stripesync/internal/organization/service"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	dbpkg "github.com/smallbiznis/stripesync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

type fixture struct {
	resolver *Resolver
	orgA     *organizationdomain.Organization
	orgB     *organizationdomain.Organization
}

func newFixture(t *testing.T, policy config.WebhookPolicy) fixture {
	t.Helper()
	db := dbpkg.NewTest(t, migration.SQLiteSchema()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	orgs := organizationservice.NewService(organizationservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  organizationrepo.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
	ctx := context.Background()
	orgA, err := orgs.EnsureOrganization(ctx, organizationdomain.EnsureOrganizationRequest{
		Name: "Tenant A", StripeSecretKey: "sk_test_a", StripeWebhookSecret: "whsec_a",
	})
	require.NoError(t, err)
	orgB, err := orgs.EnsureOrganization(ctx, organizationdomain.EnsureOrganizationRequest{
		Name: "Tenant B", StripeSecretKey: "sk_test_b", StripeWebhookSecret: "whsec_b",
	})
	require.NoError(t, err)

	cfg := config.Config{Webhook: config.WebhookConfig{TenantMetadataKey: "organization_id", ToleranceSeconds: 300}}
	r := New(Params{Cfg: cfg, Log: zap.NewNop(), Orgs: orgs, Policy: config.NewStaticWebhookPolicy(policy)})
	return fixture{resolver: r, orgA: orgA, orgB: orgB}
}

func eventPayload(eventType string, object string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_test_1","object":"event","type":%q,"created":%d,"api_version":"2025-03-31.basil","data":{"object":%s}}`,
		eventType, time.Now().Unix(), object,
	))
}

func sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestResolveFromMetadata(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())
	payload := eventPayload("customer.created", fmt.Sprintf(`{"id":"cus_1","metadata":{"organization_id":"%s"}}`, f.orgB.ID))

	res, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_b"))
	require.NoError(t, err)
	assert.Equal(t, f.orgB.ID, res.Org.ID)
	assert.Equal(t, "sk_test_b", res.SecretKey)
	assert.Equal(t, domain.ResolutionPathMetadata, res.Path)
	assert.Equal(t, "evt_test_1", res.Event.ID)
}

func TestResolveRejectsOtherTenantSecret(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())
	payload := eventPayload("customer.created", fmt.Sprintf(`{"id":"cus_1","metadata":{"organization_id":"%s"}}`, f.orgB.ID))

	_, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_a"))
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestResolveFromExpandedSubscription(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())
	object := fmt.Sprintf(`{"id":"in_1","subscription":{"id":"sub_1","metadata":{"org_id":"%s"}},"customer":"cus_1"}`, f.orgB.ID)
	payload := eventPayload("invoice.payment_succeeded", object)

	res, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_b"))
	require.NoError(t, err)
	assert.Equal(t, f.orgB.ID, res.Org.ID)
}

func TestResolveFallsBackToFirstOrganization(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())
	payload := eventPayload("customer.created", `{"id":"cus_1","metadata":{}}`)

	res, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_a"))
	require.NoError(t, err)
	assert.Equal(t, f.orgA.ID, res.Org.ID)
	assert.Equal(t, domain.ResolutionPathFallback, res.Path)
}

func TestResolveFallbackDisallowedByPolicy(t *testing.T) {
	f := newFixture(t, config.WebhookPolicy{EnforceTenantMatch: true, FallbackEventTypes: []string{"customer.created"}})
	payload := eventPayload("invoice.payment_failed", `{"id":"in_1","subscription":"sub_1"}`)

	_, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_a"))
	require.ErrorIs(t, err, domain.ErrNoTenantResolved)
}

func TestResolveUnknownTenant(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())
	payload := eventPayload("customer.created", `{"id":"cus_1","metadata":{"organization_id":"123456"}}`)

	_, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_a"))
	require.ErrorIs(t, err, domain.ErrNoTenantResolved)
}

func TestResolveInvalidPayload(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())

	_, err := f.resolver.Resolve(context.Background(), []byte("not-json"), "t=1,v1=abc")
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = f.resolver.Resolve(context.Background(), []byte(`{"data":{"object":{}}}`), "t=1,v1=abc")
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestTenantFromObjectSkipsBareReferences(t *testing.T) {
	object := []byte(`{"subscription":"sub_1","customer":{"id":"cus_1","metadata":{"organization_id":"42"}}}`)
	assert.Equal(t, "42", TenantFromObject(object, "organization_id"))
	assert.Equal(t, "", TenantFromObject([]byte(`{"subscription":"sub_1","customer":"cus_1"}`), "organization_id"))
	assert.Equal(t, "7", TenantFromObject([]byte(`{"metadata":{"tenant":"7"}}`), "tenant"))
}

func TestResolveTenantMismatchIsFatalByPolicy(t *testing.T) {
	f := newFixture(t, config.DefaultWebhookPolicy())
	object := fmt.Sprintf(
		`{"id":"pi_1","metadata":{"organization_id":"%s"},"customer":{"id":"cus_1","metadata":{"organization_id":"%s"}}}`,
		f.orgB.ID, f.orgA.ID,
	)
	payload := eventPayload("payment_intent.succeeded", object)

	_, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_b"))
	require.ErrorIs(t, err, domain.ErrTenantMismatch)
}

func TestResolveTenantMismatchTolerated(t *testing.T) {
	f := newFixture(t, config.WebhookPolicy{EnforceTenantMatch: false, FallbackEventTypes: []string{"*"}})
	object := fmt.Sprintf(
		`{"id":"pi_1","metadata":{"organization_id":"%s"},"customer":{"id":"cus_1","metadata":{"organization_id":"%s"}}}`,
		f.orgB.ID, f.orgA.ID,
	)
	payload := eventPayload("payment_intent.succeeded", object)

	res, err := f.resolver.Resolve(context.Background(), payload, sign(payload, "whsec_b"))
	require.NoError(t, err)
	assert.Equal(t, f.orgB.ID, res.Org.ID)
}
