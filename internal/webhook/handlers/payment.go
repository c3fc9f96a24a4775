package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	customerdomain "github.com/smallbiznis/stripesync/internal/customer/domain"
	transactiondomain "github.com/smallbiznis/stripesync/internal/transaction/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"go.uber.org/zap"
)

// PaymentSucceeded settles a linked invoice, provisions the paying customer
// and records the transaction with its purchases.
func (h *Handlers) PaymentSucceeded(ctx context.Context, event *domain.Event) error {
	var pi paymentIntentObject
	if err := decodeObject(event.Object(), &pi); err != nil {
		return err
	}
	if pi.ID == "" {
		return fmt.Errorf("%w: payment intent without id", domain.ErrInvalidEvent)
	}
	metadata := flattenMetadata(pi.Metadata)

	if err := h.settleInvoice(ctx, event, &pi, metadata); err != nil {
		return err
	}

	payer, err := h.resolvePayer(ctx, event, &pi)
	if err != nil {
		return err
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	txn, created, err := h.transactions.Record(ctx, transactiondomain.RecordRequest{
		OrgID:               event.OrgID,
		StripeTransactionID: pi.ID,
		StripeCustomerID:    payer.stripeCustomerID,
		UserID:              payer.userID,
		AmountMinor:         amount,
		Currency:            pi.Currency,
		Status:              transactiondomain.StatusSucceeded,
		Description:         pi.Description,
		CustomerName:        payer.name,
		CustomerEmail:       payer.email,
		PaymentMethod:       paymentMethodType(&pi),
		Metadata:            metadata,
	})
	if err != nil {
		return rejectInvalid("record transaction", err)
	}
	if !created {
		h.logger(ctx, event).Debug("transaction already recorded", zap.String("payment_intent_id", pi.ID))
	}

	return h.recordPurchases(ctx, event, txn, payer.userID, metadata, pi.Created)
}

// settleInvoice marks the invoice named in the payment metadata as paid out
// of band. The invoice is never finalized here.
func (h *Handlers) settleInvoice(ctx context.Context, event *domain.Event, pi *paymentIntentObject, metadata map[string]string) error {
	subscriptionID := strings.TrimSpace(metadata[metadataSubscriptionID])
	invoiceID := strings.TrimSpace(metadata[metadataInvoiceID])
	if subscriptionID == "" || invoiceID == "" {
		return nil
	}
	log := h.logger(ctx, event).With(
		zap.String("invoice_id", invoiceID),
		zap.String("subscription_id", subscriptionID),
		zap.String("payment_intent_id", pi.ID),
	)

	gw, err := h.gateways.ForSecret(event.SecretKey)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}
	invoice, err := gw.GetInvoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("get invoice: %w", err)
	}
	if !invoice.Settleable() {
		log.Info("invoice already settled, skipping", zap.String("status", invoice.Status))
		return nil
	}
	if expandableID(pi.PaymentMethod) == "" {
		log.Warn("payment intent has no payment method, invoice left open")
		return nil
	}

	annotation := map[string]string{
		metadataPaidByPaymentIntent: pi.ID,
		metadataPaidOutOfBandAt:     h.clock.Now().UTC().Format(time.RFC3339),
	}
	if err := gw.UpdateInvoiceMetadata(ctx, invoiceID, annotation); err != nil {
		h.secondaryFailed(ctx, event, secondaryInvoiceMetadata, err, zap.String("invoice_id", invoiceID))
	}
	if err := gw.PayOutOfBand(ctx, invoiceID); err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	log.Info("invoice marked paid out of band")
	return nil
}

type payer struct {
	stripeCustomerID string
	userID           string
	name             string
	email            string
}

// resolvePayer loads the customer snapshot for the payment and provisions
// the customer when it is not known yet.
func (h *Handlers) resolvePayer(ctx context.Context, event *domain.Event, pi *paymentIntentObject) (payer, error) {
	out := payer{
		stripeCustomerID: expandableID(pi.Customer),
		email:            strings.TrimSpace(pi.ReceiptEmail),
	}
	if out.stripeCustomerID == "" {
		return out, nil
	}
	expanded := expandedCustomer(pi.Customer)
	deleted := false
	if expanded != nil {
		out.name = expanded.Name
		deleted = expanded.Deleted
		if expanded.Email != "" {
			out.email = expanded.Email
		}
	}

	existing, err := h.customers.GetByStripeID(ctx, event.OrgID, out.stripeCustomerID)
	if err != nil && !errors.Is(err, customerdomain.ErrNotFound) {
		return out, fmt.Errorf("find customer: %w", err)
	}

	if expanded == nil {
		fetched, fetchErr := h.fetchCustomer(ctx, event, out.stripeCustomerID)
		switch {
		case fetchErr != nil && existing == nil:
			return out, fetchErr
		case fetchErr != nil:
			h.secondaryFailed(ctx, event, secondaryGetCustomer, fetchErr, zap.String("stripe_customer_id", out.stripeCustomerID))
		case fetched.Deleted:
			deleted = true
		default:
			out.name = fetched.Name
			if fetched.Email != "" {
				out.email = fetched.Email
			}
		}
	}
	if deleted {
		h.logger(ctx, event).Info("customer deleted in stripe", zap.String("stripe_customer_id", out.stripeCustomerID))
	}

	if existing == nil && !deleted && out.email != "" {
		existing, err = h.ensureCustomer(ctx, event, out.stripeCustomerID, out.email, out.name)
		if err != nil {
			return out, err
		}
	}
	if existing != nil {
		out.userID = existing.UserID
	}
	return out, nil
}

func (h *Handlers) fetchCustomer(ctx context.Context, event *domain.Event, stripeCustomerID string) (*customerObject, error) {
	gw, err := h.gateways.ForSecret(event.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	cust, err := gw.GetCustomer(ctx, stripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &customerObject{ID: cust.ID, Email: cust.Email, Name: cust.Name, Deleted: cust.Deleted}, nil
}

func (h *Handlers) recordPurchases(
	ctx context.Context,
	event *domain.Event,
	txn *transactiondomain.Transaction,
	userID string,
	metadata map[string]string,
	created int64,
) error {
	raw := strings.TrimSpace(metadata[metadataItems])
	if raw == "" || txn == nil {
		return nil
	}
	if userID == "" {
		h.logger(ctx, event).Warn("purchase items without a provisioned user, skipping",
			zap.String("stripe_transaction_id", txn.StripeTransactionID),
		)
		return nil
	}
	items, err := transactiondomain.ParseItems(raw)
	if err != nil {
		h.logger(ctx, event).Warn("invalid purchase items metadata",
			zap.String("stripe_transaction_id", txn.StripeTransactionID),
			zap.Error(err),
		)
		return nil
	}

	start := event.OccurredAt()
	if created > 0 {
		start = time.Unix(created, 0).UTC()
	}
	inserted, err := h.transactions.RecordPurchases(ctx, transactiondomain.RecordPurchasesRequest{
		Transaction: txn,
		ProfileID:   userID,
		Items:       items,
		StartDate:   start,
	})
	if err != nil {
		return rejectInvalid("record purchases", err)
	}
	if inserted > 0 {
		h.logger(ctx, event).Info("purchases recorded",
			zap.String("stripe_transaction_id", txn.StripeTransactionID),
			zap.Int("count", inserted),
		)
	}
	return nil
}
