package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/organization/domain"
	"gorm.io/gorm"
)

const organizationColumns = `id, name, slug, stripe_secret_key, stripe_webhook_secret, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT `+organizationColumns+` FROM organizations WHERE id = ?`,
		id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT `+organizationColumns+` FROM organizations WHERE slug = ?`,
		slug,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) FirstWithWebhookSecret(ctx context.Context, db *gorm.DB) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT ` + organizationColumns + `
		 FROM organizations
		 WHERE stripe_webhook_secret IS NOT NULL AND stripe_webhook_secret <> ''
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *domain.Organization) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO organizations (`+organizationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO NOTHING`,
		org.ID,
		org.Name,
		org.Slug,
		org.StripeSecretKey,
		org.StripeWebhookSecret,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
