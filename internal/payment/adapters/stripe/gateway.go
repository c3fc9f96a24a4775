package stripe

import (
	"context"
	"strings"
	"sync"

	"github.com/smallbiznis/stripesync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/stripesync/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Factory builds one client per secret key and reuses it.
type Factory struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	backends *stripe.Backends

	mu      sync.Mutex
	clients map[string]*Gateway
}

func NewFactory(p Params) paymentdomain.Factory {
	return newFactory(p.Log, p.Metrics, nil)
}

// NewFactoryWithBackends points every client at the given backends.
func NewFactoryWithBackends(log *zap.Logger, m *metrics.Metrics, backends *stripe.Backends) *Factory {
	return newFactory(log, m, backends)
}

func newFactory(log *zap.Logger, m *metrics.Metrics, backends *stripe.Backends) *Factory {
	return &Factory{
		log:      log.Named("payment.stripe"),
		metrics:  m,
		backends: backends,
		clients:  map[string]*Gateway{},
	}
}

func (f *Factory) ForSecret(secretKey string) (paymentdomain.Gateway, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, paymentdomain.ErrMissingSecretKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gw, ok := f.clients[secretKey]; ok {
		return gw, nil
	}
	gw := &Gateway{
		api:     client.New(secretKey, f.backends),
		log:     f.log,
		metrics: f.metrics,
	}
	f.clients[secretKey] = gw
	return gw, nil
}

type Gateway struct {
	api     *client.API
	log     *zap.Logger
	metrics *metrics.Metrics
}

func (g *Gateway) GetInvoice(ctx context.Context, invoiceID string) (*paymentdomain.Invoice, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, paymentdomain.ErrInvalidID
	}
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := g.api.Invoices.Get(invoiceID, params)
	g.record(ctx, "invoice.get", err)
	if err != nil {
		return nil, err
	}

	out := &paymentdomain.Invoice{
		ID:       inv.ID,
		Status:   string(inv.Status),
		Metadata: inv.Metadata,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	return out, nil
}

func (g *Gateway) UpdateInvoiceMetadata(ctx context.Context, invoiceID string, metadata map[string]string) error {
	if strings.TrimSpace(invoiceID) == "" {
		return paymentdomain.ErrInvalidID
	}
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	_, err := g.api.Invoices.Update(invoiceID, params)
	g.record(ctx, "invoice.update_metadata", err)
	return err
}

func (g *Gateway) PayOutOfBand(ctx context.Context, invoiceID string) error {
	if strings.TrimSpace(invoiceID) == "" {
		return paymentdomain.ErrInvalidID
	}
	params := &stripe.InvoicePayParams{PaidOutOfBand: stripe.Bool(true)}
	params.Context = ctx
	_, err := g.api.Invoices.Pay(invoiceID, params)
	g.record(ctx, "invoice.pay_out_of_band", err)
	return err
}

func (g *Gateway) FinalizeInvoice(ctx context.Context, invoiceID string) error {
	if strings.TrimSpace(invoiceID) == "" {
		return paymentdomain.ErrInvalidID
	}
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx
	_, err := g.api.Invoices.FinalizeInvoice(invoiceID, params)
	g.record(ctx, "invoice.finalize", err)
	return err
}

func (g *Gateway) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return paymentdomain.ErrInvalidID
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	_, err := g.api.Subscriptions.Update(subscriptionID, params)
	g.record(ctx, "subscription.update_metadata", err)
	return err
}

func (g *Gateway) GetCustomer(ctx context.Context, customerID string) (*paymentdomain.Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, paymentdomain.ErrInvalidID
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := g.api.Customers.Get(customerID, params)
	g.record(ctx, "customer.get", err)
	if err != nil {
		return nil, err
	}
	return &paymentdomain.Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Name:     cust.Name,
		Metadata: cust.Metadata,
		Deleted:  cust.Deleted,
	}, nil
}

func (g *Gateway) record(ctx context.Context, operation string, err error) {
	g.metrics.RecordGatewayCall(ctx, operation, err)
	if err != nil {
		g.log.Warn("stripe call failed", zap.String("operation", operation), zap.Error(err))
	}
}
