// Package webhooktest wires the reconciliation stack over an in-memory
// database for tests.
package webhooktest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/config"
	customerdomain "github.com/smallbiznis/stripesync/internal/customer/domain"
	customerrepo "github.com/smallbiznis/stripesync/internal/customer/repository"
	customerservice "github.com/smallbiznis/stripesync/internal/customer/service"
	"github.com/smallbiznis/stripesync/internal/identity/local"
	"github.com/smallbiznis/stripesync/internal/migration"
	organizationdomain "github.com/smallbiznis/stripesync/internal/organization/domain"
	organizationrepo "github.com/smallbiznis/stripesync/internal/organization/repository"
	organizationservice "github.com/smallbiznis/stripesync/internal/organization/service"
	paymentdomain "github.com/smallbiznis/stripesync/internal/payment/domain"
	pricedomain "github.com/smallbiznis/stripesync/internal/price/domain"
	pricerepo "github.com/smallbiznis/stripesync/internal/price/repository"
	priceservice "github.com/smallbiznis/stripesync/internal/price/service"
	productdomain "github.com/smallbiznis/stripesync/internal/product/domain"
	productrepo "github.com/smallbiznis/stripesync/internal/product/repository"
	productservice "github.com/smallbiznis/stripesync/internal/product/service"
	provisioningrepo "github.com/smallbiznis/stripesync/internal/provisioning/repository"
	provisioningservice "github.com/smallbiznis/stripesync/internal/provisioning/service"
	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/stripesync/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/stripesync/internal/subscription/service"
	transactiondomain "github.com/smallbiznis/stripesync/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/stripesync/internal/transaction/repository"
	transactionservice "github.com/smallbiznis/stripesync/internal/transaction/service"
	"github.com/smallbiznis/stripesync/internal/webhook/dispatcher"
	"github.com/smallbiznis/stripesync/internal/webhook/handlers"
	dbpkg "github.com/smallbiznis/stripesync/pkg/db"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetInvoice(ctx context.Context, invoiceID string) (*paymentdomain.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	inv, _ := args.Get(0).(*paymentdomain.Invoice)
	return inv, args.Error(1)
}

func (m *MockGateway) UpdateInvoiceMetadata(ctx context.Context, invoiceID string, metadata map[string]string) error {
	return m.Called(ctx, invoiceID, metadata).Error(0)
}

func (m *MockGateway) PayOutOfBand(ctx context.Context, invoiceID string) error {
	return m.Called(ctx, invoiceID).Error(0)
}

func (m *MockGateway) FinalizeInvoice(ctx context.Context, invoiceID string) error {
	return m.Called(ctx, invoiceID).Error(0)
}

func (m *MockGateway) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error {
	return m.Called(ctx, subscriptionID, metadata).Error(0)
}

func (m *MockGateway) GetCustomer(ctx context.Context, customerID string) (*paymentdomain.Customer, error) {
	args := m.Called(ctx, customerID)
	cust, _ := args.Get(0).(*paymentdomain.Customer)
	return cust, args.Error(1)
}

// Factory hands out the same mock for every secret key and remembers the
// keys it was asked for.
type Factory struct {
	Gateway *MockGateway
	Keys    []string
}

func (f *Factory) ForSecret(secretKey string) (paymentdomain.Gateway, error) {
	f.Keys = append(f.Keys, secretKey)
	return f.Gateway, nil
}

type Harness struct {
	DB            *gorm.DB
	Clock         *clock.FakeClock
	Node          *snowflake.Node
	Config        config.Config
	Orgs          organizationdomain.Service
	Customers     customerdomain.Service
	Transactions  transactiondomain.Service
	Subscriptions subscriptiondomain.Service
	Products      productdomain.Service
	Prices        pricedomain.Service
	Gateway       *MockGateway
	Factory       *Factory
	Handlers      *handlers.Handlers
	Dispatcher    *dispatcher.Dispatcher
}

func NewHarness(t testing.TB) *Harness {
	t.Helper()
	db := dbpkg.NewTest(t, migration.SQLiteSchema()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(Epoch)
	log := zap.NewNop()
	cfg := config.Config{
		PublicURL: "http://localhost:3000",
		Webhook: config.WebhookConfig{
			TenantMetadataKey: "organization_id",
			ToleranceSeconds:  300,
			LockTTLSeconds:    30,
			MaxBodyBytes:      1 << 20,
		},
	}

	provisioner := provisioningservice.New(provisioningservice.Params{
		DB:       db,
		Log:      log,
		Repo:     provisioningrepo.Provide(),
		Identity: local.NewProvider(db, log, cfg.PublicURL, fc),
		Clock:    fc,
	})

	h := &Harness{
		DB:     db,
		Clock:  fc,
		Node:   node,
		Config: cfg,
		Orgs: organizationservice.NewService(organizationservice.Params{
			DB: db, Log: log, GenID: node, Repo: organizationrepo.Provide(), Clock: fc,
		}),
		Customers: customerservice.New(customerservice.Params{
			DB: db, Log: log, GenID: node, Repo: customerrepo.Provide(), Provisioner: provisioner, Clock: fc,
		}),
		Transactions: transactionservice.New(transactionservice.Params{
			DB: db, Log: log, GenID: node, Repo: transactionrepo.Provide(), Clock: fc,
		}),
		Subscriptions: subscriptionservice.New(subscriptionservice.Params{
			DB: db, Log: log, GenID: node, Repo: subscriptionrepo.Provide(), Clock: fc,
		}),
		Products: productservice.New(productservice.Params{
			DB: db, Log: log, GenID: node, Repo: productrepo.Provide(), Clock: fc,
		}),
		Prices: priceservice.New(priceservice.Params{
			DB: db, Log: log, GenID: node, Repo: pricerepo.Provide(), Clock: fc,
		}),
		Gateway: &MockGateway{},
	}
	h.Factory = &Factory{Gateway: h.Gateway}
	h.Handlers = handlers.New(handlers.Params{
		Cfg:           cfg,
		Log:           log,
		Customers:     h.Customers,
		Transactions:  h.Transactions,
		Subscriptions: h.Subscriptions,
		Products:      h.Products,
		Prices:        h.Prices,
		Gateways:      h.Factory,
		Clock:         fc,
	})
	h.Dispatcher = dispatcher.New()
	h.Handlers.Register(h.Dispatcher)
	return h
}

// Organization creates a tenant with plaintext test secrets.
func (h *Harness) Organization(t testing.TB, name, secretKey, webhookSecret string) *organizationdomain.Organization {
	t.Helper()
	org, err := h.Orgs.EnsureOrganization(context.Background(), organizationdomain.EnsureOrganizationRequest{
		Name:                name,
		StripeSecretKey:     secretKey,
		StripeWebhookSecret: webhookSecret,
	})
	require.NoError(t, err)
	return org
}

// Count returns the number of rows in table.
func (h *Harness) Count(t testing.TB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.DB.Table(table).Count(&n).Error)
	return n
}

// EventJSON renders a Stripe event envelope around object.
func EventJSON(id, eventType string, created time.Time, object string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":%q,"created":%d,"api_version":"2025-03-31.basil","livemode":false,"data":{"object":%s}}`,
		id, eventType, created.Unix(), object,
	))
}

// Sign returns a Stripe-Signature header for payload. The timestamp is the
// wall clock because signature tolerance is checked against it.
func Sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}
