package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/stripesync/internal/config"
	organizationdomain "github.com/smallbiznis/stripesync/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/stripesync/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/repository"
	"github.com/smallbiznis/stripesync/internal/webhook/resolver"
	"github.com/smallbiznis/stripesync/internal/webhook/webhooktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	h    *webhooktest.Harness
	svc  domain.Service
	orgA *organizationdomain.Organization
	orgB *organizationdomain.Organization
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	h := webhooktest.NewHarness(t)
	orgA := h.Organization(t, "Tenant A", "sk_test_a", "whsec_a")
	orgB := h.Organization(t, "Tenant B", "sk_test_b", "whsec_b")

	r := resolver.New(resolver.Params{
		Cfg:    h.Config,
		Log:    zap.NewNop(),
		Orgs:   h.Orgs,
		Policy: config.NewStaticWebhookPolicy(config.DefaultWebhookPolicy()),
	})
	svc := New(Params{
		DB:         h.DB,
		Log:        zap.NewNop(),
		GenID:      h.Node,
		Repo:       repository.Provide(),
		Resolver:   r,
		Dispatcher: h.Dispatcher,
		Clock:      h.Clock,
	})
	return fixture{h: h, svc: svc, orgA: orgA, orgB: orgB}
}

func (f fixture) ingest(payload []byte, secret string) (domain.Outcome, error) {
	return f.svc.Ingest(context.Background(), payload, webhooktest.Sign(payload, secret))
}

func tagged(org *organizationdomain.Organization, body string) string {
	return fmt.Sprintf(`{%s,"metadata":{"organization_id":"%s"}}`, body, org.ID)
}

func TestIngestCustomerCreatedScenario(t *testing.T) {
	f := newFixture(t)
	payload := webhooktest.EventJSON("evt_1", "customer.created", webhooktest.Epoch,
		tagged(f.orgA, `"id":"cus_a","email":"a@example.com","name":"A"`))

	outcome, err := f.ingest(payload, "whsec_a")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, outcome)

	if n := f.h.Count(t, "profiles"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	if n := f.h.Count(t, "customers"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	if n := f.h.Count(t, "transactions"); n != 0 {
		t.Fatalf("expected %d, got %d", 0, n)
	}
	cust, err := f.h.Customers.GetByStripeID(context.Background(), f.orgA.ID, "cus_a")
	require.NoError(t, err)
	require.NotNil(t, cust.TempPassword)
}

func TestIngestReplayIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	payload := webhooktest.EventJSON("evt_2", "customer.created", webhooktest.Epoch,
		tagged(f.orgA, `"id":"cus_r","email":"r@example.com"`))

	_, err := f.ingest(payload, "whsec_a")
	require.NoError(t, err)

	outcome, err := f.ingest(payload, "whsec_a")
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)

	if n := f.h.Count(t, "customers"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	if n := f.h.Count(t, "webhook_events"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
}

func TestIngestPaymentForKnownCustomerScenario(t *testing.T) {
	f := newFixture(t)
	customer := webhooktest.EventJSON("evt_c", "customer.created", webhooktest.Epoch,
		tagged(f.orgA, `"id":"cus_k","email":"k@example.com","name":"K"`))
	_, err := f.ingest(customer, "whsec_a")
	require.NoError(t, err)

	f.h.Gateway.On("GetCustomer", mock.Anything, "cus_k").
		Return(&paymentdomain.Customer{ID: "cus_k", Email: "k@example.com", Name: "K"}, nil)

	// Distinct event ids carrying the same payment exercise the store-level
	// dedupe rather than the event log.
	for i, id := range []string{"evt_pay_1", "evt_pay_2"} {
		payload := webhooktest.EventJSON(id, "payment_intent.succeeded", webhooktest.Epoch.Add(time.Duration(i)*time.Minute),
			tagged(f.orgA, `"id":"pi_k","amount":2000,"currency":"usd","customer":"cus_k"`))
		_, err := f.ingest(payload, "whsec_a")
		require.NoError(t, err)
	}

	if n := f.h.Count(t, "customers"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	if n := f.h.Count(t, "transactions"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
}

func TestIngestSubscriptionDeletedScenario(t *testing.T) {
	f := newFixture(t)
	f.h.Gateway.On("UpdateSubscriptionMetadata", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	created := webhooktest.EventJSON("evt_s1", "customer.subscription.created", webhooktest.Epoch,
		tagged(f.orgA, `"id":"sub_x","status":"active","customer":"cus_x"`))
	_, err := f.ingest(created, "whsec_a")
	require.NoError(t, err)

	var first subscriptiondomain.Subscription
	for i, id := range []string{"evt_del_1", "evt_del_2"} {
		payload := webhooktest.EventJSON(id, "customer.subscription.deleted", webhooktest.Epoch.Add(time.Duration(i+1)*time.Minute),
			tagged(f.orgA, `"id":"sub_x","status":"canceled","customer":"cus_x","canceled_at":1748779260`))
		_, err := f.ingest(payload, "whsec_a")
		require.NoError(t, err)

		var sub subscriptiondomain.Subscription
		require.NoError(t, f.h.DB.Where("stripe_subscription_id = ?", "sub_x").First(&sub).Error)
		assert.Equal(t, subscriptiondomain.StatusCancelled, sub.Status)
		require.NotNil(t, sub.CancelledAt)
		if i == 0 {
			first = sub
			continue
		}
		assert.Equal(t, first.UpdatedAt.UTC(), sub.UpdatedAt.UTC())
	}
}

func TestIngestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	payload := webhooktest.EventJSON("evt_iso", "customer.created", webhooktest.Epoch,
		tagged(f.orgB, `"id":"cus_iso","email":"iso@example.com"`))

	_, err := f.ingest(payload, "whsec_a")
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	for _, table := range []string{"webhook_events", "customers", "profiles"} {
		if n := f.h.Count(t, table); n != 0 {
			t.Fatalf("expected %d, got %d", 0, n)
		}
	}
}

func TestIngestUnknownEventIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	payload := webhooktest.EventJSON("evt_unknown", "charge.refunded", webhooktest.Epoch,
		tagged(f.orgA, `"id":"ch_1"`))

	outcome, err := f.ingest(payload, "whsec_a")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)

	for _, table := range []string{"customers", "transactions", "subscriptions", "products", "prices"} {
		if n := f.h.Count(t, table); n != 0 {
			t.Fatalf("expected %d, got %d", 0, n)
		}
	}

	stored, err := repository.Provide().FindEvent(context.Background(), f.h.DB, domain.ProviderStripe, "evt_unknown")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ProcessedAt)
}

func TestIngestInvalidContentIsSettled(t *testing.T) {
	f := newFixture(t)
	payload := webhooktest.EventJSON("evt_noname", "product.created", webhooktest.Epoch,
		tagged(f.orgA, `"id":"prod_noname","name":"  ","active":true`))

	outcome, err := f.ingest(payload, "whsec_a")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	if n := f.h.Count(t, "products"); n != 0 {
		t.Fatalf("expected %d, got %d", 0, n)
	}

	stored, err := repository.Provide().FindEvent(context.Background(), f.h.DB, domain.ProviderStripe, "evt_noname")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ProcessedAt)

	outcome, err = f.ingest(payload, "whsec_a")
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)
}

func TestIngestMissingSignature(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), []byte(`{}`), " ")
	require.ErrorIs(t, err, domain.ErrMissingSignature)
}

func TestIngestFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	object := tagged(f.orgA, `"id":"pi_retry","amount":900,"currency":"usd","payment_method":"pm_1"`)
	object = object[:len(object)-len(`}}`)] + `,"subscription_id":"sub_r","invoice_id":"in_r"}}`
	payload := webhooktest.EventJSON("evt_retry", "payment_intent.succeeded", webhooktest.Epoch, object)

	f.h.Gateway.On("GetInvoice", mock.Anything, "in_r").
		Return(&paymentdomain.Invoice{ID: "in_r", Status: paymentdomain.InvoiceStatusOpen}, nil)
	f.h.Gateway.On("UpdateInvoiceMetadata", mock.Anything, "in_r", mock.Anything).Return(nil)
	f.h.Gateway.On("PayOutOfBand", mock.Anything, "in_r").Return(errors.New("api_error")).Once()
	f.h.Gateway.On("PayOutOfBand", mock.Anything, "in_r").Return(nil).Once()

	_, err := f.ingest(payload, "whsec_a")
	require.Error(t, err)
	if n := f.h.Count(t, "transactions"); n != 0 {
		t.Fatalf("expected %d, got %d", 0, n)
	}

	outcome, err := f.ingest(payload, "whsec_a")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, outcome)
	if n := f.h.Count(t, "transactions"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	f.h.Gateway.AssertNotCalled(t, "FinalizeInvoice", mock.Anything, mock.Anything)
}

func TestIngestConcurrentCustomerEvents(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := webhooktest.EventJSON(fmt.Sprintf("evt_race_%d", i), "customer.created", webhooktest.Epoch,
				tagged(f.orgA, fmt.Sprintf(`"id":"cus_race_%d","email":"race@example.com"`, i)))
			_, errs[i] = f.ingest(payload, "whsec_a")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	if n := f.h.Count(t, "profiles"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	first, err := f.h.Customers.GetByStripeID(context.Background(), f.orgA.ID, "cus_race_0")
	require.NoError(t, err)
	second, err := f.h.Customers.GetByStripeID(context.Background(), f.orgA.ID, "cus_race_1")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
}

func TestMetricOutcome(t *testing.T) {
	assert.Equal(t, "duplicate", metricOutcome(domain.OutcomeDuplicate, domain.ErrEventAlreadyProcessed))
	assert.Equal(t, "rejected", metricOutcome("", domain.ErrTenantMismatch))
	assert.Equal(t, "in_flight", metricOutcome("", domain.ErrEventInFlight))
	assert.Equal(t, "failed", metricOutcome("", errors.New("db down")))
	assert.Equal(t, "ignored", metricOutcome(domain.OutcomeIgnored, nil))
	assert.Equal(t, "processed", metricOutcome(domain.OutcomeProcessed, nil))
}
