package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/price/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripePriceID string, forUpdate bool) (*domain.Price, error) {
	query := `SELECT id, org_id, stripe_price_id, stripe_product_id, active, currency, unit_amount, type,
			recurring_interval, recurring_interval_count, nickname, metadata, source_updated_at,
			deleted_at, created_at, updated_at
		 FROM prices WHERE org_id = ? AND stripe_price_id = ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var price domain.Price
	if err := db.WithContext(ctx).Raw(query, orgID, stripePriceID).Scan(&price).Error; err != nil {
		return nil, err
	}
	if price.ID == 0 {
		return nil, nil
	}
	return &price, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, price *domain.Price) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO prices (
			id, org_id, stripe_price_id, stripe_product_id, active, currency, unit_amount, type,
			recurring_interval, recurring_interval_count, nickname, metadata, source_updated_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_price_id) DO NOTHING`,
		price.ID,
		price.OrgID,
		price.StripePriceID,
		price.StripeProductID,
		price.Active,
		price.Currency,
		price.UnitAmount,
		price.Type,
		price.RecurringInterval,
		price.RecurringIntervalCount,
		price.Nickname,
		price.Metadata,
		price.SourceUpdatedAt,
		price.CreatedAt,
		price.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, price *domain.Price) error {
	if price == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE prices
		 SET stripe_product_id = ?, active = ?, currency = ?, unit_amount = ?, type = ?,
			recurring_interval = ?, recurring_interval_count = ?, nickname = ?, metadata = ?,
			source_updated_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		price.StripeProductID,
		price.Active,
		price.Currency,
		price.UnitAmount,
		price.Type,
		price.RecurringInterval,
		price.RecurringIntervalCount,
		price.Nickname,
		price.Metadata,
		price.SourceUpdatedAt,
		price.UpdatedAt,
		price.OrgID,
		price.ID,
	).Error
}

func (r *repo) MarkDeleted(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, sourceUpdatedAt, deletedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE prices
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
