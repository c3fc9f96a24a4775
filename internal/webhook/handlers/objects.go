package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/stripesync/internal/webhook/domain"
)

// Local views of the Stripe objects the routines read. Expandable fields are
// kept raw so both bare ids and expanded objects decode.

type customerObject struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Deleted  bool           `json:"deleted"`
	Metadata map[string]any `json:"metadata"`
}

type paymentIntentObject struct {
	ID                 string          `json:"id"`
	Amount             int64           `json:"amount"`
	AmountReceived     int64           `json:"amount_received"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	Description        string          `json:"description"`
	ReceiptEmail       string          `json:"receipt_email"`
	Customer           json.RawMessage `json:"customer"`
	PaymentMethod      json.RawMessage `json:"payment_method"`
	PaymentMethodTypes []string        `json:"payment_method_types"`
	Created            int64           `json:"created"`
	Metadata           map[string]any  `json:"metadata"`
}

type subscriptionItem struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type subscriptionObject struct {
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	Customer           json.RawMessage `json:"customer"`
	CancelAtPeriodEnd  bool            `json:"cancel_at_period_end"`
	CanceledAt         int64           `json:"canceled_at"`
	CurrentPeriodStart int64           `json:"current_period_start"`
	CurrentPeriodEnd   int64           `json:"current_period_end"`
	Items              struct {
		Data []subscriptionItem `json:"data"`
	} `json:"items"`
	Metadata map[string]any `json:"metadata"`
}

type invoiceObject struct {
	ID            string          `json:"id"`
	Customer      json.RawMessage `json:"customer"`
	CustomerEmail string          `json:"customer_email"`
	CustomerName  string          `json:"customer_name"`
	Subscription  json.RawMessage `json:"subscription"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
	AmountPaid    int64           `json:"amount_paid"`
	AmountDue     int64           `json:"amount_due"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Metadata map[string]any `json:"metadata"`
}

// subscriptionID reads the subscription reference from either the legacy
// top-level field or the newer parent.subscription_details.
func (i *invoiceObject) subscriptionID() string {
	if id := expandableID(i.Subscription); id != "" {
		return id
	}
	return expandableID(i.Parent.SubscriptionDetails.Subscription)
}

type productObject struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Active       bool            `json:"active"`
	DefaultPrice json.RawMessage `json:"default_price"`
	Images       []string        `json:"images"`
	Metadata     map[string]any  `json:"metadata"`
}

type priceObject struct {
	ID         string          `json:"id"`
	Product    json.RawMessage `json:"product"`
	Active     bool            `json:"active"`
	Currency   string          `json:"currency"`
	UnitAmount *int64          `json:"unit_amount"`
	Type       string          `json:"type"`
	Nickname   string          `json:"nickname"`
	Recurring  *struct {
		Interval      string `json:"interval"`
		IntervalCount int64  `json:"interval_count"`
	} `json:"recurring"`
	Metadata map[string]any `json:"metadata"`
}

type paymentMethodObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func decodeObject(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty event object", domain.ErrInvalidEvent)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode event object: %w", domain.ErrInvalidEvent, err)
	}
	return nil
}

// expandableID returns the id of a field that is either a bare string or an
// expanded object.
func expandableID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var id string
		if json.Unmarshal(trimmed, &id) != nil {
			return ""
		}
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(trimmed, &obj) != nil {
		return ""
	}
	return strings.TrimSpace(obj.ID)
}

// expandedCustomer decodes an expanded customer, returning nil for bare ids.
func expandedCustomer(raw json.RawMessage) *customerObject {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var c customerObject
	if json.Unmarshal(trimmed, &c) != nil {
		return nil
	}
	return &c
}

func paymentMethodType(pi *paymentIntentObject) string {
	trimmed := bytes.TrimSpace(pi.PaymentMethod)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var pm paymentMethodObject
		if json.Unmarshal(trimmed, &pm) == nil && pm.Type != "" {
			return pm.Type
		}
	}
	if len(pi.PaymentMethodTypes) > 0 {
		return pi.PaymentMethodTypes[0]
	}
	return "unknown"
}

// flattenMetadata converts metadata to string values. Nested values are
// JSON-encoded and nulls are dropped.
func flattenMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case bool, float64, json.Number:
			out[k] = fmt.Sprint(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}

func epochTime(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}
