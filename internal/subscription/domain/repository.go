package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeSubscriptionID string, forUpdate bool) (*Subscription, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, subscription *Subscription) (bool, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
