package handlers

import (
	"errors"
	"fmt"

	pricedomain "github.com/smallbiznis/stripesync/internal/price/domain"
	productdomain "github.com/smallbiznis/stripesync/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/stripesync/internal/transaction/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/domain"
)

// Store validation failures caused by the event content itself. Retrying the
// delivery cannot change the result.
var invalidContent = []error{
	productdomain.ErrInvalidID,
	productdomain.ErrInvalidName,
	productdomain.ErrInvalidTimestamp,
	pricedomain.ErrInvalidID,
	pricedomain.ErrInvalidCurrency,
	pricedomain.ErrInvalidTimestamp,
	subscriptiondomain.ErrInvalidID,
	subscriptiondomain.ErrInvalidStatus,
	subscriptiondomain.ErrInvalidTimestamp,
	transactiondomain.ErrInvalidID,
	transactiondomain.ErrInvalidCurrency,
	transactiondomain.ErrInvalidItems,
}

// rejectInvalid wraps a store error with op, marking content validation
// failures as domain.ErrInvalidEvent.
func rejectInvalid(op string, err error) error {
	for _, target := range invalidContent {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidEvent, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
