package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Profile, error)
	// InsertIfAbsent reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, profile *Profile) (bool, error)
}
