package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeProductID string, forUpdate bool) (*domain.Product, error) {
	query := `SELECT id, org_id, stripe_product_id, name, slug, description, active, default_price_id,
			images, metadata, source_updated_at, deleted_at, created_at, updated_at
		 FROM products WHERE org_id = ? AND stripe_product_id = ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var p domain.Product
	if err := db.WithContext(ctx).Raw(query, orgID, stripeProductID).Scan(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, product *domain.Product) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO products (
			id, org_id, stripe_product_id, name, slug, description, active, default_price_id,
			images, metadata, source_updated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_product_id) DO NOTHING`,
		product.ID,
		product.OrgID,
		product.StripeProductID,
		product.Name,
		product.Slug,
		product.Description,
		product.Active,
		product.DefaultPriceID,
		product.Images,
		product.Metadata,
		product.SourceUpdatedAt,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET name = ?, slug = ?, description = ?, active = ?, default_price_id = ?, images = ?,
			metadata = ?, source_updated_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		product.Name,
		product.Slug,
		product.Description,
		product.Active,
		product.DefaultPriceID,
		product.Images,
		product.Metadata,
		product.SourceUpdatedAt,
		product.UpdatedAt,
		product.OrgID,
		product.ID,
	).Error
}

func (r *repo) MarkDeleted(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, sourceUpdatedAt, deletedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET active = ?, deleted_at = ?, source_updated_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND deleted_at IS NULL`,
		false,
		deletedAt,
		sourceUpdatedAt,
		deletedAt,
		orgID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
