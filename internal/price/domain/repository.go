package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripePriceID string, forUpdate bool) (*Price, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, price *Price) (bool, error)
	Update(ctx context.Context, db *gorm.DB, price *Price) error
	// MarkDeleted tombstones a live row. The row keeps its source timestamp so
	// older updates replayed after the delete stay stale.
	MarkDeleted(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, sourceUpdatedAt, deletedAt time.Time) (bool, error)
}
