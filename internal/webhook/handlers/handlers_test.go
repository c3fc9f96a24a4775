package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stripesync/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/stripesync/internal/payment/domain"
	pricedomain "github.com/smallbiznis/stripesync/internal/price/domain"
	productdomain "github.com/smallbiznis/stripesync/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/stripesync/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/stripesync/internal/transaction/domain"
	webhookdomain "github.com/smallbiznis/stripesync/internal/webhook/domain"
	"github.com/smallbiznis/stripesync/internal/webhook/webhooktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func newEvent(t *testing.T, org *domain.Organization, id, eventType string, created time.Time, object string) *webhookdomain.Event {
	t.Helper()
	payload := webhooktest.EventJSON(id, eventType, created, object)
	var ev stripe.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	return &webhookdomain.Event{OrgID: org.ID, SecretKey: "sk_test_a", Stripe: ev}
}

func dispatch(t *testing.T, h *webhooktest.Harness, ev *webhookdomain.Event) error {
	t.Helper()
	handled, err := h.Dispatcher.Dispatch(context.Background(), ev)
	require.True(t, handled, "no routine for %s", ev.Type())
	return err
}

func TestCustomerCreatedProvisionsOnce(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := `{"id":"cus_1","email":"Buyer@Example.com","name":"Buyer","metadata":{}}`

	for i := 0; i < 2; i++ {
		require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_c1", "customer.created", webhooktest.Epoch, object)))
	}

	if n := h.Count(t, "customers"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	if n := h.Count(t, "profiles"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	cust, err := h.Customers.GetByStripeID(context.Background(), org.ID, "cus_1")
	require.NoError(t, err)
	require.NotNil(t, cust.TempPassword)
}

func TestCustomerCreatedWithoutEmailIsSkipped(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_c2", "customer.created", webhooktest.Epoch, `{"id":"cus_2"}`)))

	if n := h.Count(t, "customers"); n != 0 {
		t.Fatalf("expected %d, got %d", 0, n)
	}
}

func TestPaymentSucceededSettlesOpenInvoice(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := `{
		"id":"pi_settle","amount":5000,"amount_received":5000,"currency":"usd","status":"succeeded",
		"customer":{"id":"cus_9","email":"payer@example.com","name":"Payer"},
		"payment_method":"pm_1","created":1748779200,
		"metadata":{"subscription_id":"sub_9","invoice_id":"in_9"}
	}`

	h.Gateway.On("GetInvoice", mock.Anything, "in_9").
		Return(&paymentdomain.Invoice{ID: "in_9", Status: paymentdomain.InvoiceStatusOpen}, nil).Once()
	h.Gateway.On("UpdateInvoiceMetadata", mock.Anything, "in_9", mock.MatchedBy(func(m map[string]string) bool {
		return m["paid_by_payment_intent"] == "pi_settle" && m["paid_out_of_band_at"] != ""
	})).Return(nil).Once()
	h.Gateway.On("PayOutOfBand", mock.Anything, "in_9").Return(nil).Once()

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_p1", "payment_intent.succeeded", webhooktest.Epoch, object)))

	h.Gateway.AssertExpectations(t)
	h.Gateway.AssertNotCalled(t, "FinalizeInvoice", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"sk_test_a"}, h.Factory.Keys)

	var txn transactiondomain.Transaction
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "pi_settle").First(&txn).Error)
	assert.True(t, decimal.NewFromInt(50).Equal(txn.Amount))
	assert.Equal(t, "USD", txn.Currency)
	assert.Equal(t, "payer@example.com", txn.CustomerEmail)
	require.NotNil(t, txn.UserID)
}

func TestPaymentSucceededSkipsSettledInvoice(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := `{"id":"pi_paid","amount":1000,"currency":"eur","payment_method":"pm_1","metadata":{"subscription_id":"sub_1","invoice_id":"in_1"}}`

	h.Gateway.On("GetInvoice", mock.Anything, "in_1").
		Return(&paymentdomain.Invoice{ID: "in_1", Status: paymentdomain.InvoiceStatusPaid}, nil).Once()

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_p2", "payment_intent.succeeded", webhooktest.Epoch, object)))

	h.Gateway.AssertNotCalled(t, "PayOutOfBand", mock.Anything, mock.Anything)
	h.Gateway.AssertNotCalled(t, "FinalizeInvoice", mock.Anything, mock.Anything)
	if n := h.Count(t, "transactions"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
}

func TestPaymentSucceededMetadataFailureIsSwallowed(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := `{"id":"pi_meta","amount":1000,"currency":"usd","payment_method":"pm_1","metadata":{"subscription_id":"sub_1","invoice_id":"in_2"}}`

	h.Gateway.On("GetInvoice", mock.Anything, "in_2").
		Return(&paymentdomain.Invoice{ID: "in_2", Status: paymentdomain.InvoiceStatusDraft}, nil)
	h.Gateway.On("UpdateInvoiceMetadata", mock.Anything, "in_2", mock.Anything).Return(errors.New("stripe down"))
	h.Gateway.On("PayOutOfBand", mock.Anything, "in_2").Return(nil)

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_p3", "payment_intent.succeeded", webhooktest.Epoch, object)))
	h.Gateway.AssertCalled(t, "PayOutOfBand", mock.Anything, "in_2")
}

func TestPaymentSucceededPayFailureAborts(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := `{"id":"pi_fail","amount":1000,"currency":"usd","payment_method":"pm_1","metadata":{"subscription_id":"sub_1","invoice_id":"in_3"}}`

	h.Gateway.On("GetInvoice", mock.Anything, "in_3").
		Return(&paymentdomain.Invoice{ID: "in_3", Status: paymentdomain.InvoiceStatusOpen}, nil)
	h.Gateway.On("UpdateInvoiceMetadata", mock.Anything, "in_3", mock.Anything).Return(nil)
	h.Gateway.On("PayOutOfBand", mock.Anything, "in_3").Return(errors.New("card_declined"))

	err := dispatch(t, h, newEvent(t, org, "evt_p4", "payment_intent.succeeded", webhooktest.Epoch, object))
	require.Error(t, err)
	if n := h.Count(t, "transactions"); n != 0 {
		t.Fatalf("expected %d, got %d", 0, n)
	}
}

func TestPaymentSucceededRecordsPurchasesOnce(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	items := `[{\"id\":\"plan_1\",\"product_name\":\"Course\",\"package\":\"basic\",\"measure\":\"3-month\"},{\"id\":\"plan_2\",\"product_name\":\"Book\",\"package\":\"pdf\",\"measure\":\"one-time\"}]`
	object := fmt.Sprintf(`{"id":"pi_items","amount":1500,"currency":"jpy","customer":"cus_items","created":1748779200,"metadata":{"items":"%s"}}`, items)

	h.Gateway.On("GetCustomer", mock.Anything, "cus_items").
		Return(&paymentdomain.Customer{ID: "cus_items", Email: "student@example.com", Name: "Student"}, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_p5", "payment_intent.succeeded", webhooktest.Epoch, object)))
	}

	if n := h.Count(t, "transactions"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	if n := h.Count(t, "purchases"); n != 2 {
		t.Fatalf("expected %d, got %d", 2, n)
	}

	var txn transactiondomain.Transaction
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "pi_items").First(&txn).Error)
	assert.True(t, decimal.NewFromInt(1500).Equal(txn.Amount))
	assert.Equal(t, "Student", txn.CustomerName)

	var course transactiondomain.Purchase
	require.NoError(t, h.DB.Where("purchased_item_id = ?", "plan_1").First(&course).Error)
	require.NotNil(t, course.EndDate)
	assert.Equal(t, time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC), course.EndDate.UTC())

	var book transactiondomain.Purchase
	require.NoError(t, h.DB.Where("purchased_item_id = ?", "plan_2").First(&book).Error)
	assert.Nil(t, book.EndDate)
}

func TestPaymentSucceededWithoutCustomerUsesDefaults(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_p6", "payment_intent.succeeded", webhooktest.Epoch,
		`{"id":"pi_anon","amount":700,"currency":"gbp"}`)))

	var txn transactiondomain.Transaction
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "pi_anon").First(&txn).Error)
	assert.Equal(t, transactiondomain.DefaultCustomerName, txn.CustomerName)
	assert.Equal(t, transactiondomain.DefaultCustomerEmail, txn.CustomerEmail)
	assert.Nil(t, txn.UserID)
	h.Gateway.AssertNotCalled(t, "GetCustomer", mock.Anything, mock.Anything)
}

func TestSubscriptionUpsertedAnnotatesAndIgnoresStale(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	h.Gateway.On("UpdateSubscriptionMetadata", mock.Anything, "sub_1", map[string]string{"organization_id": org.ID.String()}).Return(nil)

	newer := `{"id":"sub_1","status":"past_due","customer":"cus_1","items":{"data":[{"price":{"id":"price_1"},"current_period_start":1748779200,"current_period_end":1751371200}]},"metadata":{}}`
	older := `{"id":"sub_1","status":"active","customer":"cus_1","metadata":{}}`

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_s1", "customer.subscription.updated", webhooktest.Epoch.Add(time.Hour), newer)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_s0", "customer.subscription.created", webhooktest.Epoch, older)))

	var sub subscriptiondomain.Subscription
	require.NoError(t, h.DB.Where("stripe_subscription_id = ?", "sub_1").First(&sub).Error)
	assert.Equal(t, subscriptiondomain.StatusPastDue, sub.Status)
	h.Gateway.AssertNumberOfCalls(t, "UpdateSubscriptionMetadata", 2)
}

func TestSubscriptionUpsertedSkipsAnnotationWhenTagged(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := fmt.Sprintf(`{"id":"sub_2","status":"canceled","customer":"cus_1","metadata":{"organization_id":"%s"}}`, org.ID)

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_s2", "customer.subscription.updated", webhooktest.Epoch, object)))

	var sub subscriptiondomain.Subscription
	require.NoError(t, h.DB.Where("stripe_subscription_id = ?", "sub_2").First(&sub).Error)
	assert.Equal(t, subscriptiondomain.StatusCancelled, sub.Status)
	h.Gateway.AssertNotCalled(t, "UpdateSubscriptionMetadata", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptionDeletedInsertsUnknownAsCancelled(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	object := `{"id":"sub_gone","status":"canceled","customer":"cus_1","canceled_at":1748779200}`

	for i := 0; i < 2; i++ {
		require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_d1", "customer.subscription.deleted", webhooktest.Epoch, object)))
	}

	var sub subscriptiondomain.Subscription
	require.NoError(t, h.DB.Where("stripe_subscription_id = ?", "sub_gone").First(&sub).Error)
	assert.Equal(t, subscriptiondomain.StatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	assert.Equal(t, time.Unix(1748779200, 0).UTC(), sub.CancelledAt.UTC())
	if n := h.Count(t, "subscriptions"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	h.Gateway.On("UpdateSubscriptionMetadata", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_s3", "customer.subscription.created", webhooktest.Epoch,
		`{"id":"sub_3","status":"active","customer":"cus_3"}`)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_i1", "invoice.payment_failed", webhooktest.Epoch.Add(time.Minute),
		`{"id":"in_3","customer":"cus_3","subscription":"sub_3","amount_due":2500,"amount_paid":0,"currency":"usd"}`)))

	var sub subscriptiondomain.Subscription
	require.NoError(t, h.DB.Where("stripe_subscription_id = ?", "sub_3").First(&sub).Error)
	assert.Equal(t, subscriptiondomain.StatusPastDue, sub.Status)

	var txn transactiondomain.Transaction
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "in_3").First(&txn).Error)
	assert.Equal(t, transactiondomain.StatusFailed, txn.Status)
	assert.True(t, decimal.NewFromInt(25).Equal(txn.Amount))
}

func TestInvoicePaymentSucceededReactivates(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	h.Gateway.On("UpdateSubscriptionMetadata", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_s4", "customer.subscription.created", webhooktest.Epoch,
		`{"id":"sub_4","status":"past_due","customer":"cus_4"}`)))
	object := `{"id":"in_4","customer":"cus_4","payment_intent":"pi_4","amount_paid":1999,"currency":"usd","parent":{"subscription_details":{"subscription":"sub_4"}}}`
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_i2", "invoice.payment_succeeded", webhooktest.Epoch.Add(time.Minute), object)))

	var sub subscriptiondomain.Subscription
	require.NoError(t, h.DB.Where("stripe_subscription_id = ?", "sub_4").First(&sub).Error)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)

	var txn transactiondomain.Transaction
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "pi_4").First(&txn).Error)
	assert.Equal(t, "in_4", txn.Metadata["invoice_id"])
}

func TestCatalogSyncFlattensMetadata(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	product := `{"id":"prod_1","name":"Pro Plan","active":true,"images":["https://img/1.png"],"default_price":"price_1","metadata":{"tier":"gold","limits":{"seats":5},"beta":true}}`
	price := `{"id":"price_1","product":"prod_1","active":true,"currency":"jpy","unit_amount":1200,"type":"recurring","recurring":{"interval":"month","interval_count":1},"metadata":{}}`

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_k1", "product.created", webhooktest.Epoch, product)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_k2", "price.created", webhooktest.Epoch, price)))

	var prod productdomain.Product
	require.NoError(t, h.DB.Where("stripe_product_id = ?", "prod_1").First(&prod).Error)
	assert.Equal(t, "gold", prod.Metadata["tier"])
	assert.Equal(t, `{"seats":5}`, prod.Metadata["limits"])
	assert.Equal(t, "true", prod.Metadata["beta"])
	assert.Equal(t, "pro-plan", prod.Slug)

	var pr pricedomain.Price
	require.NoError(t, h.DB.Where("stripe_price_id = ?", "price_1").First(&pr).Error)
	require.True(t, pr.UnitAmount.Valid)
	assert.True(t, decimal.NewFromInt(1200).Equal(pr.UnitAmount.Decimal))

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_k3", "price.deleted", webhooktest.Epoch.Add(time.Minute), price)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_k4", "product.deleted", webhooktest.Epoch.Add(time.Minute), product)))

	prod = productdomain.Product{}
	require.NoError(t, h.DB.Where("stripe_product_id = ?", "prod_1").First(&prod).Error)
	require.NotNil(t, prod.DeletedAt)
	assert.False(t, prod.Active)
	pr = pricedomain.Price{}
	require.NoError(t, h.DB.Where("stripe_price_id = ?", "price_1").First(&pr).Error)
	require.NotNil(t, pr.DeletedAt)
}

func TestCatalogDeleteSurvivesLateUpdates(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	product := `{"id":"prod_z","name":"Zed","active":true}`
	price := `{"id":"price_z","product":"prod_z","active":true,"currency":"usd","unit_amount":500}`

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_z1", "product.created", webhooktest.Epoch, product)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_z2", "price.created", webhooktest.Epoch, price)))
	deletedAt := webhooktest.Epoch.Add(2 * time.Minute)
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_z3", "price.deleted", deletedAt, price)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_z4", "product.deleted", deletedAt, product)))

	// Updates emitted before the delete arrive late.
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_z5", "product.updated", webhooktest.Epoch.Add(time.Minute),
		`{"id":"prod_z","name":"Zed Renamed","active":true}`)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_z6", "price.updated", webhooktest.Epoch.Add(time.Minute),
		`{"id":"price_z","product":"prod_z","active":true,"currency":"usd","unit_amount":700}`)))

	if n := h.Count(t, "products"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}
	var prod productdomain.Product
	require.NoError(t, h.DB.Where("stripe_product_id = ?", "prod_z").First(&prod).Error)
	require.NotNil(t, prod.DeletedAt)
	assert.Equal(t, "Zed", prod.Name)
	assert.False(t, prod.Active)

	var pr pricedomain.Price
	require.NoError(t, h.DB.Where("stripe_price_id = ?", "price_z").First(&pr).Error)
	require.NotNil(t, pr.DeletedAt)
	assert.True(t, decimal.NewFromInt(5).Equal(pr.UnitAmount.Decimal))
}

func TestFailedInvoiceAttemptIsPromotedWhenPaymentSucceeds(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")
	failed := `{"id":"in_r","payment_intent":"pi_r","amount_due":3000,"amount_paid":0,"currency":"usd"}`
	paid := `{"id":"in_r","payment_intent":"pi_r","amount_due":3000,"amount_paid":3000,"currency":"usd"}`

	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_f1", "invoice.payment_failed", webhooktest.Epoch, failed)))
	later := webhooktest.Epoch.Add(time.Hour)
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_f2", "payment_intent.succeeded", later,
		`{"id":"pi_r","amount":3000,"amount_received":3000,"currency":"usd"}`)))
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_f3", "invoice.payment_succeeded", later, paid)))

	var txn transactiondomain.Transaction
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "pi_r").First(&txn).Error)
	assert.Equal(t, transactiondomain.StatusSucceeded, txn.Status)
	if n := h.Count(t, "transactions"); n != 1 {
		t.Fatalf("expected %d, got %d", 1, n)
	}

	// A redelivered failure after capture leaves the row succeeded.
	require.NoError(t, dispatch(t, h, newEvent(t, org, "evt_f1", "invoice.payment_failed", webhooktest.Epoch, failed)))
	require.NoError(t, h.DB.Where("stripe_transaction_id = ?", "pi_r").First(&txn).Error)
	assert.Equal(t, transactiondomain.StatusSucceeded, txn.Status)
}

func TestInvalidContentIsTaggedAsInvalidEvent(t *testing.T) {
	h := webhooktest.NewHarness(t)
	org := h.Organization(t, "Acme", "sk_test_a", "whsec_a")

	err := dispatch(t, h, newEvent(t, org, "evt_v1", "product.created", webhooktest.Epoch, `{"id":"prod_v","name":""}`))
	require.ErrorIs(t, err, webhookdomain.ErrInvalidEvent)
	require.ErrorIs(t, err, productdomain.ErrInvalidName)

	err = dispatch(t, h, newEvent(t, org, "evt_v2", "price.created", webhooktest.Epoch, `{"id":"price_v","unit_amount":100}`))
	require.ErrorIs(t, err, webhookdomain.ErrInvalidEvent)
	require.ErrorIs(t, err, pricedomain.ErrInvalidCurrency)

	err = dispatch(t, h, newEvent(t, org, "evt_v3", "product.created", webhooktest.Epoch, `{"id":42,"name":"Numeric"}`))
	require.ErrorIs(t, err, webhookdomain.ErrInvalidEvent)
}
