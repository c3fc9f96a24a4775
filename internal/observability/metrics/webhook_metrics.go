package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	OutcomeProcessed        = "processed"
	OutcomeIgnored          = "ignored"
	OutcomeDuplicate        = "duplicate"
	OutcomeInFlight         = "in_flight"
	OutcomeRejected         = "rejected"
	OutcomeFailed           = "failed"
	OutcomeStale            = "stale"
	ResolutionPathMetadata  = "metadata"
	ResolutionPathFallback  = "fallback"
	FailureReasonDeadline   = "deadline_exceeded"
	FailureReasonLock       = "db_lock_timeout"
	FailureReasonSerialize  = "serialization_failure"
	FailureReasonUnique     = "unique_violation"
	FailureReasonDB         = "db"
	FailureReasonUnknown    = "unknown"
	defaultServiceNameLabel = "stripesync"
)

// WebhookMetrics tracks webhook delivery health in Prometheus.
type WebhookMetrics struct {
	events      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	resolutions *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook collectors on the default registry.
func NewWebhookMetrics(cfg Config) *WebhookMetrics {
	return newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceNameLabel
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &WebhookMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stripesync_webhook_events_total",
			Help:        "Stripe webhook deliveries by event type and outcome.",
			ConstLabels: constLabels,
		}, []string{"event_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "stripesync_webhook_duration_seconds",
			Help:        "Stripe webhook processing latency.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"event_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stripesync_webhook_failures_total",
			Help:        "Stripe webhook processing failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"event_type", "reason"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stripesync_webhook_tenant_resolutions_total",
			Help:        "Tenant resolution path taken for verified events.",
			ConstLabels: constLabels,
		}, []string{"path"}),
	}

	registerer.MustRegister(m.events, m.duration, m.failures, m.resolutions)
	return m
}

func (m *WebhookMetrics) ObserveEvent(eventType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	eventType = normalizeEventType(eventType)
	m.events.WithLabelValues(eventType, outcome).Inc()
	m.duration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *WebhookMetrics) IncFailure(eventType string, err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(normalizeEventType(eventType), ClassifyFailureReason(err)).Inc()
}

func (m *WebhookMetrics) IncResolution(path string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(path).Inc()
}

func normalizeEventType(eventType string) string {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return "unknown"
	}
	return eventType
}

// ClassifyFailureReason maps processing errors to low-cardinality reasons.
func ClassifyFailureReason(err error) string {
	switch {
	case err == nil:
		return FailureReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return FailureReasonDeadline
	case hasPGCode(err, "55P03"):
		return FailureReasonLock
	case hasPGCode(err, "40001"):
		return FailureReasonSerialize
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return FailureReasonUnique
	case isDBError(err):
		return FailureReasonDB
	default:
		return FailureReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
