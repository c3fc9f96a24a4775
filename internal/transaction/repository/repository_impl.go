package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stripesync/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, stripeTransactionID string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, stripe_transaction_id, stripe_customer_id, user_id, amount, currency,
			status, description, customer_name, customer_email, payment_method, refunded_at,
			metadata, created_at, updated_at
		 FROM transactions
		 WHERE org_id = ? AND stripe_transaction_id = ?`,
		orgID,
		stripeTransactionID,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, txn *domain.Transaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, org_id, stripe_transaction_id, stripe_customer_id, user_id, amount, currency,
			status, description, customer_name, customer_email, payment_method, refunded_at,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_transaction_id) DO NOTHING`,
		txn.ID,
		txn.OrgID,
		txn.StripeTransactionID,
		txn.StripeCustomerID,
		txn.UserID,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.Description,
		txn.CustomerName,
		txn.CustomerEmail,
		txn.PaymentMethod,
		txn.RefundedAt,
		txn.Metadata,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) PromoteStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, amount decimal.Decimal, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, amount = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		amount,
		updatedAt,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertPurchaseIfAbsent(ctx context.Context, db *gorm.DB, purchase *domain.Purchase) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO purchases (
			id, org_id, transaction_id, profile_id, purchased_item_id, product_name,
			package, measure, start_date, end_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (purchased_item_id, profile_id, transaction_id) DO NOTHING`,
		purchase.ID,
		purchase.OrgID,
		purchase.TransactionID,
		purchase.ProfileID,
		purchase.PurchasedItemID,
		purchase.ProductName,
		purchase.Package,
		purchase.Measure,
		purchase.StartDate,
		purchase.EndDate,
		purchase.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
