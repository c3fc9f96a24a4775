package handlers

import (
	"context"
	"fmt"

	pricedomain "github.com/smallbiznis/stripesync/internal/price/domain"
	productdomain "github.com/smallbiznis/stripesync/internal/product/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"go.uber.org/zap"
)

func (h *Handlers) ProductUpserted(ctx context.Context, event *domain.Event) error {
	var obj productObject
	if err := decodeObject(event.Object(), &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		return fmt.Errorf("%w: product without id", domain.ErrInvalidEvent)
	}
	outcome, err := h.products.Upsert(ctx, productdomain.UpsertRequest{
		OrgID:           event.OrgID,
		StripeProductID: obj.ID,
		Name:            obj.Name,
		Description:     obj.Description,
		Active:          obj.Active,
		DefaultPriceID:  expandableID(obj.DefaultPrice),
		Images:          obj.Images,
		Metadata:        flattenMetadata(obj.Metadata),
		SourceUpdatedAt: event.OccurredAt(),
	})
	if err != nil {
		return rejectInvalid("upsert product", err)
	}
	h.logger(ctx, event).Debug("product synced", zap.String("product_id", obj.ID), zap.String("outcome", string(outcome)))
	return nil
}

func (h *Handlers) ProductDeleted(ctx context.Context, event *domain.Event) error {
	var obj productObject
	if err := decodeObject(event.Object(), &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		return fmt.Errorf("%w: product without id", domain.ErrInvalidEvent)
	}
	outcome, err := h.products.Delete(ctx, productdomain.DeleteRequest{
		OrgID:           event.OrgID,
		StripeProductID: obj.ID,
		SourceUpdatedAt: event.OccurredAt(),
	})
	if err != nil {
		return rejectInvalid("delete product", err)
	}
	h.logger(ctx, event).Debug("product deleted", zap.String("product_id", obj.ID), zap.String("outcome", string(outcome)))
	return nil
}

func (h *Handlers) PriceUpserted(ctx context.Context, event *domain.Event) error {
	var obj priceObject
	if err := decodeObject(event.Object(), &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		return fmt.Errorf("%w: price without id", domain.ErrInvalidEvent)
	}
	req := pricedomain.UpsertRequest{
		OrgID:           event.OrgID,
		StripePriceID:   obj.ID,
		StripeProductID: expandableID(obj.Product),
		Active:          obj.Active,
		Currency:        obj.Currency,
		UnitAmountMinor: obj.UnitAmount,
		Type:            obj.Type,
		Nickname:        obj.Nickname,
		Metadata:        flattenMetadata(obj.Metadata),
		SourceUpdatedAt: event.OccurredAt(),
	}
	if obj.Recurring != nil {
		req.RecurringInterval = obj.Recurring.Interval
		req.RecurringIntervalCount = obj.Recurring.IntervalCount
	}
	outcome, err := h.prices.Upsert(ctx, req)
	if err != nil {
		return rejectInvalid("upsert price", err)
	}
	h.logger(ctx, event).Debug("price synced", zap.String("price_id", obj.ID), zap.String("outcome", string(outcome)))
	return nil
}

func (h *Handlers) PriceDeleted(ctx context.Context, event *domain.Event) error {
	var obj priceObject
	if err := decodeObject(event.Object(), &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		return fmt.Errorf("%w: price without id", domain.ErrInvalidEvent)
	}
	outcome, err := h.prices.Delete(ctx, pricedomain.DeleteRequest{
		OrgID:           event.OrgID,
		StripePriceID:   obj.ID,
		SourceUpdatedAt: event.OccurredAt(),
	})
	if err != nil {
		return rejectInvalid("delete price", err)
	}
	h.logger(ctx, event).Debug("price deleted", zap.String("price_id", obj.ID), zap.String("outcome", string(outcome)))
	return nil
}
