package handlers

import (
	"context"
	"fmt"

	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/stripesync/internal/transaction/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"go.uber.org/zap"
)

func (h *Handlers) InvoicePaymentSucceeded(ctx context.Context, event *domain.Event) error {
	return h.invoicePayment(ctx, event, transactiondomain.StatusSucceeded, subscriptiondomain.StatusActive)
}

func (h *Handlers) InvoicePaymentFailed(ctx context.Context, event *domain.Event) error {
	return h.invoicePayment(ctx, event, transactiondomain.StatusFailed, subscriptiondomain.StatusPastDue)
}

// invoicePayment records the invoice payment attempt and moves the linked
// subscription to subscriptionStatus under the ordering guard.
func (h *Handlers) invoicePayment(ctx context.Context, event *domain.Event, txnStatus, subscriptionStatus string) error {
	var inv invoiceObject
	if err := decodeObject(event.Object(), &inv); err != nil {
		return err
	}
	if inv.ID == "" {
		return fmt.Errorf("%w: invoice without id", domain.ErrInvalidEvent)
	}

	customerID := expandableID(inv.Customer)
	userID, err := h.userIDFor(ctx, event, customerID)
	if err != nil {
		return fmt.Errorf("find customer: %w", err)
	}

	transactionID := expandableID(inv.PaymentIntent)
	if transactionID == "" {
		transactionID = inv.ID
	}
	amount := inv.AmountPaid
	if txnStatus == transactiondomain.StatusFailed || amount == 0 {
		amount = inv.AmountDue
	}
	metadata := flattenMetadata(inv.Metadata)
	metadata["invoice_id"] = inv.ID

	if _, _, err := h.transactions.Record(ctx, transactiondomain.RecordRequest{
		OrgID:               event.OrgID,
		StripeTransactionID: transactionID,
		StripeCustomerID:    customerID,
		UserID:              userID,
		AmountMinor:         amount,
		Currency:            inv.Currency,
		Status:              txnStatus,
		Description:         inv.Description,
		CustomerName:        inv.CustomerName,
		CustomerEmail:       inv.CustomerEmail,
		Metadata:            metadata,
	}); err != nil {
		return rejectInvalid("record transaction", err)
	}

	subscriptionID := inv.subscriptionID()
	if subscriptionID == "" {
		return nil
	}
	outcome, err := h.subscriptions.SetStatus(ctx, subscriptiondomain.SetStatusRequest{
		OrgID:                event.OrgID,
		StripeSubscriptionID: subscriptionID,
		Status:               subscriptionStatus,
		SourceUpdatedAt:      event.OccurredAt(),
	})
	if err != nil {
		return rejectInvalid("set subscription status", err)
	}
	h.logger(ctx, event).Debug("subscription status applied",
		zap.String("subscription_id", subscriptionID),
		zap.String("status", subscriptionStatus),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
