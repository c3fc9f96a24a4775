package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/stripesync/internal/reconcile"
	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"go.uber.org/zap"
)

// SubscriptionUpserted applies the subscription state carried by the event.
// Events older than the stored state are ignored.
func (h *Handlers) SubscriptionUpserted(ctx context.Context, event *domain.Event) error {
	var sub subscriptionObject
	if err := decodeObject(event.Object(), &sub); err != nil {
		return err
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription without id", domain.ErrInvalidEvent)
	}

	customerID := expandableID(sub.Customer)
	userID, err := h.userIDFor(ctx, event, customerID)
	if err != nil {
		return fmt.Errorf("find customer: %w", err)
	}

	req := subscriptiondomain.UpsertRequest{
		OrgID:                event.OrgID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     customerID,
		UserID:               userID,
		Status:               normalizeSubscriptionStatus(sub.Status),
		CurrentPeriodStart:   epochTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     epochTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CancelledAt:          epochTime(sub.CanceledAt),
		Metadata:             flattenMetadata(sub.Metadata),
		SourceUpdatedAt:      event.OccurredAt(),
	}
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		req.PriceID = item.Price.ID
		if req.CurrentPeriodStart == nil {
			req.CurrentPeriodStart = epochTime(item.CurrentPeriodStart)
		}
		if req.CurrentPeriodEnd == nil {
			req.CurrentPeriodEnd = epochTime(item.CurrentPeriodEnd)
		}
	}

	outcome, err := h.subscriptions.Upsert(ctx, req)
	if err != nil {
		return rejectInvalid("upsert subscription", err)
	}
	if outcome == reconcile.OutcomeStale {
		h.logger(ctx, event).Info("stale subscription event ignored", zap.String("subscription_id", sub.ID))
	}

	h.annotateSubscription(ctx, event, sub.ID, req.Metadata)
	return nil
}

// annotateSubscription writes the tenant id back to Stripe so later events
// resolve without the fallback. Failures are swallowed.
func (h *Handlers) annotateSubscription(ctx context.Context, event *domain.Event, subscriptionID string, metadata map[string]string) {
	if strings.TrimSpace(metadata[h.tenantKey]) != "" {
		return
	}
	gw, err := h.gateways.ForSecret(event.SecretKey)
	if err == nil {
		err = gw.UpdateSubscriptionMetadata(ctx, subscriptionID, map[string]string{h.tenantKey: event.OrgID.String()})
	}
	if err != nil {
		h.secondaryFailed(ctx, event, secondarySubscriptionMetadata, err, zap.String("subscription_id", subscriptionID))
	}
}

// SubscriptionDeleted marks the subscription cancelled, inserting it when
// it was never seen.
func (h *Handlers) SubscriptionDeleted(ctx context.Context, event *domain.Event) error {
	var sub subscriptionObject
	if err := decodeObject(event.Object(), &sub); err != nil {
		return err
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription without id", domain.ErrInvalidEvent)
	}

	cancelledAt := event.OccurredAt()
	if at := epochTime(sub.CanceledAt); at != nil {
		cancelledAt = *at
	}
	outcome, err := h.subscriptions.Cancel(ctx, subscriptiondomain.CancelRequest{
		OrgID:                event.OrgID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     expandableID(sub.Customer),
		CancelledAt:          cancelledAt,
		SourceUpdatedAt:      event.OccurredAt(),
	})
	if err != nil {
		return rejectInvalid("cancel subscription", err)
	}
	h.logger(ctx, event).Debug("subscription cancel applied",
		zap.String("subscription_id", sub.ID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

// normalizeSubscriptionStatus maps Stripe's spelling of cancelled to ours.
func normalizeSubscriptionStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "canceled" {
		return subscriptiondomain.StatusCancelled
	}
	return status
}
