package handlers

import (
	"context"
	"errors"
	"fmt"

	customerdomain "github.com/smallbiznis/stripesync/internal/customer/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
	"go.uber.org/zap"
)

// CustomerCreated provisions an identity for a new Stripe customer. Customers
// without an email are skipped.
func (h *Handlers) CustomerCreated(ctx context.Context, event *domain.Event) error {
	var obj customerObject
	if err := decodeObject(event.Object(), &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		return fmt.Errorf("%w: customer without id", domain.ErrInvalidEvent)
	}

	_, err := h.ensureCustomer(ctx, event, obj.ID, obj.Email, obj.Name)
	return err
}

// ensureCustomer returns the customer row, provisioning it when absent. A nil
// customer with a nil error means the customer had no email.
func (h *Handlers) ensureCustomer(ctx context.Context, event *domain.Event, stripeCustomerID, email, name string) (*customerdomain.Customer, error) {
	cust, created, err := h.customers.Ensure(ctx, customerdomain.EnsureCustomerRequest{
		OrgID:            event.OrgID,
		StripeCustomerID: stripeCustomerID,
		Email:            email,
		Name:             name,
	})
	if err != nil {
		if errors.Is(err, customerdomain.ErrMissingEmail) {
			h.logger(ctx, event).Warn("customer has no email, skipping provisioning",
				zap.String("stripe_customer_id", stripeCustomerID),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("ensure customer: %w", err)
	}
	if created {
		h.logger(ctx, event).Info("customer provisioned",
			zap.String("stripe_customer_id", stripeCustomerID),
			zap.String("user_id", cust.UserID),
		)
	}
	return cust, nil
}
