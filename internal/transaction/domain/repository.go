package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeTransactionID string) (*Transaction, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, txn *Transaction) (bool, error)
	// PromoteStatus updates the row only while it still holds from.
	PromoteStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, amount decimal.Decimal, updatedAt time.Time) (bool, error)
	InsertPurchaseIfAbsent(ctx context.Context, db *gorm.DB, purchase *Purchase) (bool, error)
}
