package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Organization, error)
	FirstWithWebhookSecret(ctx context.Context, db *gorm.DB) (*Organization, error)
	Insert(ctx context.Context, db *gorm.DB, org *Organization) (bool, error)
}
