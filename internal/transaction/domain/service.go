package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	OrgID               snowflake.ID
	StripeTransactionID string
	StripeCustomerID    string
	UserID              string
	AmountMinor         int64
	Currency            string
	Status              string
	Description         string
	CustomerName        string
	CustomerEmail       string
	PaymentMethod       string
	RefundedAt          *time.Time
	Metadata            map[string]string
}

type RecordPurchasesRequest struct {
	Transaction *Transaction
	ProfileID   string
	Items       []PurchaseItem
	StartDate   time.Time
}

type Service interface {
	// Record inserts the transaction unless one with the same Stripe id
	// exists. created reports whether a row was written.
	Record(ctx context.Context, req RecordRequest) (txn *Transaction, created bool, err error)
	RecordPurchases(ctx context.Context, req RecordPurchasesRequest) (int, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidItems        = errors.New("invalid_items")
)
