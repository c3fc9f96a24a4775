package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeCustomerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, stripe_customer_id, user_id, temp_password, created_at, updated_at
		 FROM customers WHERE org_id = ? AND stripe_customer_id = ?`,
		orgID,
		stripeCustomerID,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, customer *domain.Customer) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, org_id, stripe_customer_id, user_id, temp_password, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (stripe_customer_id) DO NOTHING`,
		customer.ID,
		customer.OrgID,
		customer.StripeCustomerID,
		customer.UserID,
		customer.TempPassword,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
