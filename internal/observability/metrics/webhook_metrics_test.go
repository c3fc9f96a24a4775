package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyFailureReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: FailureReasonDeadline},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: FailureReasonLock},
		{name: "serialization", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), want: FailureReasonSerialize},
		{name: "unique", err: gorm.ErrDuplicatedKey, want: FailureReasonUnique},
		{name: "db", err: &pgconn.PgError{Code: "42P01"}, want: FailureReasonDB},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: FailureReasonUnknown},
		{name: "unknown", err: errors.New("boom"), want: FailureReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailureReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveEvent(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWebhookMetrics(registry, Config{ServiceName: "stripesync", Environment: "test"})

	m.ObserveEvent("customer.created", OutcomeProcessed, 10*time.Millisecond)
	m.ObserveEvent("customer.created", OutcomeProcessed, 20*time.Millisecond)
	m.ObserveEvent("", OutcomeRejected, time.Millisecond)
	m.IncFailure("invoice.payment_failed", gorm.ErrDuplicatedKey)

	if got := testutil.ToFloat64(m.events.WithLabelValues("customer.created", OutcomeProcessed)); got != 2 {
		t.Fatalf("expected 2 processed events, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("unknown", OutcomeRejected)); got != 1 {
		t.Fatalf("expected 1 rejected event, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("invoice.payment_failed", FailureReasonUnique)); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.POST("/webhooks/stripe", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/webhooks/stripe", "400")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
