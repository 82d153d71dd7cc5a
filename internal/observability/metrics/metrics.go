package metrics

import (
	"context"
	"errors"
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

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the OTel instruments for sweeps, realtime fan-out, webhook
// delivery and manual sweep rate limiting. A nil *Metrics records nothing.
type Metrics struct {
	slaUpdates         metric.Int64Counter
	realtimeBroadcasts metric.Int64Counter
	realtimeDropped    metric.Int64Counter
	realtimeClients    metric.Int64UpDownCounter
	webhookDeliveries  metric.Int64Counter
	rateLimitAllowed   metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider exports OTel metrics over OTLP every 10s. Disabled, it installs
// a no-op provider so instruments stay callable.
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
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)),
	))
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}

	log.Info("otel metrics enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the SLA engine instruments on the service's meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "orderdesk"
	}
	meter := provider.Meter(name)

	var errs []error
	counter := func(instrument, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(instrument, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m := &Metrics{
		slaUpdates:         counter("orderdesk_sla_status_updates_total", "Orders whose SLA status changed in a sweep."),
		realtimeBroadcasts: counter("orderdesk_realtime_broadcasts_total", "Realtime frames delivered to clients."),
		realtimeDropped:    counter("orderdesk_realtime_dropped_total", "Realtime frames dropped for a client."),
		webhookDeliveries:  counter("orderdesk_webhook_deliveries_total", "Escalation webhook attempts by outcome."),
		rateLimitAllowed:   counter("orderdesk_rate_limit_allowed_total", "Manual sweep requests admitted."),
		rateLimitDenied:    counter("orderdesk_rate_limit_denied_total", "Manual sweep requests refused."),
	}
	clients, err := meter.Int64UpDownCounter("orderdesk_realtime_clients",
		metric.WithDescription("Connected realtime clients on this replica."))
	errs = append(errs, err)
	m.realtimeClients = clients

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || n <= 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// RecordSLAUpdates counts orders moved into slaStatus by a sweep.
func (m *Metrics) RecordSLAUpdates(ctx context.Context, slaStatus string, count int) {
	if m == nil {
		return
	}
	m.add(ctx, m.slaUpdates, int64(count), attribute.String("sla_status", slaStatus))
}

// RecordBroadcast counts one event fanned out to recipients clients.
func (m *Metrics) RecordBroadcast(ctx context.Context, event string, recipients int) {
	if m == nil {
		return
	}
	m.add(ctx, m.realtimeBroadcasts, int64(recipients), attribute.String("event", event))
}

func (m *Metrics) RecordBroadcastDropped(ctx context.Context, event, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.realtimeDropped, 1, attribute.String("event", event), attribute.String("reason", reason))
}

// AddRealtimeClients moves the connected-client gauge by delta.
func (m *Metrics) AddRealtimeClients(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.realtimeClients.Add(ctx, delta)
}

// RecordWebhookDelivery counts an escalation attempt: sent, failed or no_url.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, alertType, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.webhookDeliveries, 1, attribute.String("alert_type", alertType), attribute.String("outcome", outcome))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitAllowed, 1, attribute.String("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitDenied, 1, attribute.String("endpoint", endpoint), attribute.String("reason", reason))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"sla_status":  {},
	"event":       {},
	"alert_type":  {},
	"outcome":     {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
