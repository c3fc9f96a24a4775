package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes OTel instruments for reconciliation outcomes.
type Metrics struct {
	eventsProcessed   metric.Int64Counter
	gatewayCalls      metric.Int64Counter
	usersProvisioned  metric.Int64Counter
	secondaryFailures metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the instruments on the registered provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "stripesync"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.eventsProcessed, err = meter.Int64Counter("stripesync_webhook_events_processed_total"); err != nil {
		return nil, err
	}
	if m.gatewayCalls, err = meter.Int64Counter("stripesync_gateway_calls_total"); err != nil {
		return nil, err
	}
	if m.usersProvisioned, err = meter.Int64Counter("stripesync_users_provisioned_total"); err != nil {
		return nil, err
	}
	if m.secondaryFailures, err = meter.Int64Counter("stripesync_secondary_action_failures_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordEventProcessed counts an event that reached a terminal outcome.
func (m *Metrics) RecordEventProcessed(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.eventsProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGatewayCall counts an outbound Stripe API call.
func (m *Metrics) RecordGatewayCall(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := FilterAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.gatewayCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordUserProvisioned(ctx context.Context, path string) {
	if m == nil {
		return
	}
	m.usersProvisioned.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("path", path))...))
}

func (m *Metrics) RecordSecondaryFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.secondaryFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("operation", operation))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// org_id is deliberately absent: tenants are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"event_type": {},
	"outcome":    {},
	"operation":  {},
	"status":     {},
	"path":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
