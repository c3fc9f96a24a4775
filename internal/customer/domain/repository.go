package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeCustomerID string) (*Customer, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, customer *Customer) (bool, error)
}
