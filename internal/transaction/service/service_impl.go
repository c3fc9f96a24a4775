package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/transaction/domain"
	"github.com/smallbiznis/stripesync/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("transaction.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.Transaction, bool, error) {
	if req.OrgID == 0 {
		return nil, false, domain.ErrInvalidOrganization
	}
	stripeID := strings.TrimSpace(req.StripeTransactionID)
	if stripeID == "" {
		return nil, false, domain.ErrInvalidID
	}
	currency := money.NormalizeCurrency(req.Currency)
	if currency == "" {
		return nil, false, domain.ErrInvalidCurrency
	}

	existing, err := s.repo.FindByStripeID(ctx, s.db, req.OrgID, stripeID)
	if err != nil {
		return nil, false, fmt.Errorf("find transaction: %w", err)
	}
	if existing != nil {
		return s.promote(ctx, existing, req)
	}

	now := s.clock.Now()
	txn := &domain.Transaction{
		ID:                  s.genID.Generate(),
		OrgID:               req.OrgID,
		StripeTransactionID: stripeID,
		StripeCustomerID:    strings.TrimSpace(req.StripeCustomerID),
		Amount:              money.FromMinor(req.AmountMinor, currency),
		Currency:            currency,
		Status:              req.Status,
		Description:         req.Description,
		CustomerName:        orDefault(req.CustomerName, domain.DefaultCustomerName),
		CustomerEmail:       orDefault(req.CustomerEmail, domain.DefaultCustomerEmail),
		PaymentMethod:       req.PaymentMethod,
		RefundedAt:          req.RefundedAt,
		Metadata:            toJSONMap(req.Metadata),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if userID := strings.TrimSpace(req.UserID); userID != "" {
		txn.UserID = &userID
	}

	created, err := s.repo.InsertIfAbsent(ctx, s.db, txn)
	if err != nil {
		return nil, false, fmt.Errorf("insert transaction: %w", err)
	}
	if !created {
		current, err := s.repo.FindByStripeID(ctx, s.db, req.OrgID, stripeID)
		if err != nil {
			return nil, false, fmt.Errorf("find transaction: %w", err)
		}
		if current == nil {
			return nil, false, fmt.Errorf("transaction %s vanished after conflict", stripeID)
		}
		return s.promote(ctx, current, req)
	}

	s.log.Info("transaction recorded",
		zap.String("org_id", req.OrgID.String()),
		zap.String("stripe_transaction_id", stripeID),
		zap.String("status", txn.Status),
	)
	return txn, true, nil
}

// promote moves an existing failed attempt to succeeded when the same payment
// is later captured. Status only moves forward.
func (s *Service) promote(ctx context.Context, existing *domain.Transaction, req domain.RecordRequest) (*domain.Transaction, bool, error) {
	if !domain.CanPromote(existing.Status, req.Status) {
		return existing, false, nil
	}
	amount := money.FromMinor(req.AmountMinor, existing.Currency)
	now := s.clock.Now()
	updated, err := s.repo.PromoteStatus(ctx, s.db, existing.ID, existing.Status, req.Status, amount, now)
	if err != nil {
		return nil, false, fmt.Errorf("promote transaction: %w", err)
	}
	if !updated {
		current, err := s.repo.FindByStripeID(ctx, s.db, existing.OrgID, existing.StripeTransactionID)
		if err != nil {
			return nil, false, fmt.Errorf("find transaction: %w", err)
		}
		return current, false, nil
	}

	s.log.Info("transaction promoted",
		zap.String("org_id", existing.OrgID.String()),
		zap.String("stripe_transaction_id", existing.StripeTransactionID),
		zap.String("from", existing.Status),
		zap.String("to", req.Status),
	)
	existing.Status = req.Status
	existing.Amount = amount
	existing.UpdatedAt = now
	return existing, false, nil
}

// RecordPurchases writes one purchase per item. Items with an unrecognized
// measure are still recorded without an end date.
func (s *Service) RecordPurchases(ctx context.Context, req domain.RecordPurchasesRequest) (int, error) {
	if req.Transaction == nil || strings.TrimSpace(req.ProfileID) == "" {
		return 0, nil
	}

	start := req.StartDate.UTC()
	inserted := 0
	for _, item := range req.Items {
		end, ok := domain.CalculateEndDate(start, item.Measure)
		if !ok {
			s.log.Warn("unrecognized purchase measure",
				zap.String("item_id", item.ID),
				zap.String("measure", item.Measure),
			)
		}
		purchase := &domain.Purchase{
			ID:              s.genID.Generate(),
			OrgID:           req.Transaction.OrgID,
			TransactionID:   req.Transaction.ID,
			ProfileID:       req.ProfileID,
			PurchasedItemID: item.ID,
			ProductName:     item.ProductName,
			Package:         item.Package,
			Measure:         item.Measure,
			StartDate:       start,
			EndDate:         end,
			CreatedAt:       s.clock.Now(),
		}
		created, err := s.repo.InsertPurchaseIfAbsent(ctx, s.db, purchase)
		if err != nil {
			return inserted, fmt.Errorf("insert purchase: %w", err)
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func toJSONMap(in map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
