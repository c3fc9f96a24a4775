// Package domain describes the outbound payment processor operations used
// during reconciliation.
package domain

import (
	"context"
	"errors"
)

const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusOpen          = "open"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusVoid          = "void"
	InvoiceStatusUncollectible = "uncollectible"
)

type Invoice struct {
	ID         string
	Status     string
	CustomerID string
	Metadata   map[string]string
}

// Settleable reports whether the invoice can still be marked paid.
func (i *Invoice) Settleable() bool {
	return i != nil && (i.Status == InvoiceStatusDraft || i.Status == InvoiceStatusOpen)
}

type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
	Deleted  bool
}

// Gateway is a per-tenant client for the payment processor.
type Gateway interface {
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	UpdateInvoiceMetadata(ctx context.Context, invoiceID string, metadata map[string]string) error
	// PayOutOfBand marks the invoice paid without charging the customer.
	PayOutOfBand(ctx context.Context, invoiceID string) error
	FinalizeInvoice(ctx context.Context, invoiceID string) error
	UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
}

// Factory returns the gateway bound to a tenant's secret key.
type Factory interface {
	ForSecret(secretKey string) (Gateway, error)
}

var (
	ErrMissingSecretKey = errors.New("missing_secret_key")
	ErrInvalidID        = errors.New("invalid_id")
)
