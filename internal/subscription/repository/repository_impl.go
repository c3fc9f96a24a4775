package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeSubscriptionID string, forUpdate bool) (*domain.Subscription, error) {
	query := `SELECT id, org_id, stripe_subscription_id, stripe_customer_id, user_id, status, price_id,
			current_period_start, current_period_end, cancel_at_period_end, cancelled_at,
			metadata, source_updated_at, created_at, updated_at
		 FROM subscriptions
		 WHERE org_id = ? AND stripe_subscription_id = ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(query, orgID, stripeSubscriptionID).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, org_id, stripe_subscription_id, stripe_customer_id, user_id, status, price_id,
			current_period_start, current_period_end, cancel_at_period_end, cancelled_at,
			metadata, source_updated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_subscription_id) DO NOTHING`,
		subscription.ID,
		subscription.OrgID,
		subscription.StripeSubscriptionID,
		subscription.StripeCustomerID,
		subscription.UserID,
		subscription.Status,
		subscription.PriceID,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CancelledAt,
		subscription.Metadata,
		subscription.SourceUpdatedAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET stripe_customer_id = ?, user_id = ?, status = ?, price_id = ?,
			current_period_start = ?, current_period_end = ?, cancel_at_period_end = ?,
			cancelled_at = ?, metadata = ?, source_updated_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.StripeCustomerID,
		subscription.UserID,
		subscription.Status,
		subscription.PriceID,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CancelledAt,
		subscription.Metadata,
		subscription.SourceUpdatedAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}
