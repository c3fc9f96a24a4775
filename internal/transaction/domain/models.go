package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	DefaultCustomerName  = "Unknown Customer"
	DefaultCustomerEmail = "Unknown Email"
)

// CanPromote reports whether a stored status may be replaced by next. A failed
// attempt can later succeed for the same payment intent; a success is final.
func CanPromote(current, next string) bool {
	return current == StatusFailed && next == StatusSucceeded
}

// Transaction is a settled or failed payment keyed by its Stripe id.
type Transaction struct {
	ID                  snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID               snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	StripeTransactionID string            `gorm:"column:stripe_transaction_id;not null" json:"stripe_transaction_id"`
	StripeCustomerID    string            `gorm:"column:stripe_customer_id" json:"stripe_customer_id,omitempty"`
	UserID              *string           `gorm:"column:user_id" json:"user_id,omitempty"`
	Amount              decimal.Decimal   `gorm:"type:numeric(20,4);not null" json:"amount"`
	Currency            string            `gorm:"not null" json:"currency"`
	Status              string            `gorm:"not null" json:"status"`
	Description         string            `json:"description,omitempty"`
	CustomerName        string            `gorm:"column:customer_name" json:"customer_name"`
	CustomerEmail       string            `gorm:"column:customer_email" json:"customer_email"`
	PaymentMethod       string            `gorm:"column:payment_method" json:"payment_method,omitempty"`
	RefundedAt          *time.Time        `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Purchase grants a profile access to an item bought in a transaction.
type Purchase struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID `gorm:"not null;index" json:"organization_id"`
	TransactionID   snowflake.ID `gorm:"column:transaction_id;not null" json:"transaction_id"`
	ProfileID       string       `gorm:"column:profile_id;not null" json:"profile_id"`
	PurchasedItemID string       `gorm:"column:purchased_item_id;not null" json:"purchased_item_id"`
	ProductName     string       `gorm:"column:product_name" json:"product_name,omitempty"`
	Package         string       `json:"package,omitempty"`
	Measure         string       `json:"measure,omitempty"`
	StartDate       time.Time    `gorm:"column:start_date;not null" json:"start_date"`
	EndDate         *time.Time   `gorm:"column:end_date" json:"end_date,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Purchase) TableName() string { return "purchases" }

// PurchaseItem is one entry of the payment metadata "items" array.
type PurchaseItem struct {
	ID          string `json:"id"`
	ProductName string `json:"product_name"`
	Package     string `json:"package"`
	Measure     string `json:"measure"`
}
