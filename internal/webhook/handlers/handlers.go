// Package handlers holds the reconciliation routines run for each verified
// Stripe event.
package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/config"
	customerdomain "github.com/smallbiznis/stripesync/internal/customer/domain"
	"github.com/smallbiznis/stripesync/internal/observability/logger"
	"github.com/smallbiznis/stripesync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/stripesync/internal/payment/domain"
	pricedomain "github.com/smallbiznis/stripesync/internal/price/domain"
	productdomain "github.com/smallbiznis/stripesync/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/stripesync/internal/transaction/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/dispatcher"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventCustomerCreated          = "customer.created"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
	EventProductCreated           = "product.created"
	EventProductUpdated           = "product.updated"
	EventProductDeleted           = "product.deleted"
	EventPriceCreated             = "price.created"
	EventPriceUpdated             = "price.updated"
	EventPriceDeleted             = "price.deleted"
	metadataSubscriptionID        = "subscription_id"
	metadataInvoiceID             = "invoice_id"
	metadataItems                 = "items"
	metadataPaidByPaymentIntent   = "paid_by_payment_intent"
	metadataPaidOutOfBandAt       = "paid_out_of_band_at"
	secondaryInvoiceMetadata      = "update_invoice_metadata"
	secondarySubscriptionMetadata = "update_subscription_metadata"
	secondaryGetCustomer          = "get_customer"
)

type Params struct {
	fx.In

	Cfg           config.Config
	Log           *zap.Logger
	Customers     customerdomain.Service
	Transactions  transactiondomain.Service
	Subscriptions subscriptiondomain.Service
	Products      productdomain.Service
	Prices        pricedomain.Service
	Gateways      paymentdomain.Factory
	Clock         clock.Clock      `optional:"true"`
	Metrics       *metrics.Metrics `optional:"true"`
}

type Handlers struct {
	log           *zap.Logger
	customers     customerdomain.Service
	transactions  transactiondomain.Service
	subscriptions subscriptiondomain.Service
	products      productdomain.Service
	prices        pricedomain.Service
	gateways      paymentdomain.Factory
	clock         clock.Clock
	metrics       *metrics.Metrics
	tenantKey     string
}

func New(p Params) *Handlers {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	key := strings.TrimSpace(p.Cfg.Webhook.TenantMetadataKey)
	if key == "" {
		key = "organization_id"
	}
	return &Handlers{
		log:           p.Log.Named("webhook.handlers"),
		customers:     p.Customers,
		transactions:  p.Transactions,
		subscriptions: p.Subscriptions,
		products:      p.Products,
		prices:        p.Prices,
		gateways:      p.Gateways,
		clock:         c,
		metrics:       p.Metrics,
		tenantKey:     key,
	}
}

// Register installs every routine on the dispatcher.
func (h *Handlers) Register(d *dispatcher.Dispatcher) {
	d.Register(EventCustomerCreated, h.CustomerCreated)
	d.Register(EventPaymentIntentSucceeded, h.PaymentSucceeded)
	d.Register(EventSubscriptionCreated, h.SubscriptionUpserted)
	d.Register(EventSubscriptionUpdated, h.SubscriptionUpserted)
	d.Register(EventSubscriptionDeleted, h.SubscriptionDeleted)
	d.Register(EventInvoicePaymentSucceeded, h.InvoicePaymentSucceeded)
	d.Register(EventInvoicePaymentFailed, h.InvoicePaymentFailed)
	d.Register(EventProductCreated, h.ProductUpserted)
	d.Register(EventProductUpdated, h.ProductUpserted)
	d.Register(EventProductDeleted, h.ProductDeleted)
	d.Register(EventPriceCreated, h.PriceUpserted)
	d.Register(EventPriceUpdated, h.PriceUpserted)
	d.Register(EventPriceDeleted, h.PriceDeleted)
}

func (h *Handlers) logger(ctx context.Context, event *domain.Event) *zap.Logger {
	return logger.WithContext(ctx, h.log).With(zap.String("event_type", event.Type()))
}

// secondaryFailed logs and counts a failed best-effort call. The event
// continues.
func (h *Handlers) secondaryFailed(ctx context.Context, event *domain.Event, operation string, err error, fields ...zap.Field) {
	h.metrics.RecordSecondaryFailure(ctx, operation)
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	h.logger(ctx, event).Warn("secondary action failed", fields...)
}

// userIDFor returns the provisioned user of a Stripe customer, or "" when
// the customer is unknown.
func (h *Handlers) userIDFor(ctx context.Context, event *domain.Event, stripeCustomerID string) (string, error) {
	if stripeCustomerID == "" {
		return "", nil
	}
	cust, err := h.customers.GetByStripeID(ctx, event.OrgID, stripeCustomerID)
	if err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return cust.UserID, nil
}
