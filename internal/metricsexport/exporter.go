package metricsexport

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ConnectionCounter reports live realtime clients.
type ConnectionCounter interface {
	ClientCount() int
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Pusher      Pusher `optional:"true"`
	Orders      orderdomain.Service
	Escalations escalationdomain.Service
	Connections ConnectionCounter `optional:"true"`
}

// Exporter snapshots SLA health into a private registry and pushes it.
type Exporter struct {
	log         *zap.Logger
	pusher      Pusher
	orders      orderdomain.Service
	escalations escalationdomain.Service
	connections ConnectionCounter

	registry *prometheus.Registry
	gauges   gauges
}

type gauges struct {
	breached       prometheus.Gauge
	nearBreach     prometheus.Gauge
	active         prometheus.Gauge
	urgent         prometheus.Gauge
	complianceRate prometheus.Gauge
	fulfillment    prometheus.Gauge
	avgProcessing  prometheus.Gauge
	escalations    *prometheus.GaugeVec
	connections    prometheus.Gauge
}

func New(p Params) *Exporter {
	registry := prometheus.NewRegistry()
	factory := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "orderdesk", Name: name, Help: help})
		registry.MustRegister(g)
		return g
	}
	escalations := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orderdesk",
		Name:      "escalations_open",
		Help:      "Unresolved escalations by severity.",
	}, []string{"severity"})
	registry.MustRegister(escalations)

	return &Exporter{
		log:         p.Log.Named("metricsexport"),
		pusher:      p.Pusher,
		orders:      p.Orders,
		escalations: p.Escalations,
		connections: p.Connections,
		registry:    registry,
		gauges: gauges{
			breached:       factory("orders_sla_breached", "Active orders past their SLA target."),
			nearBreach:     factory("orders_sla_near_breach", "Active orders close to their SLA target."),
			active:         factory("orders_active", "Orders still pending or processing."),
			urgent:         factory("orders_urgent", "Active orders with URGENT priority."),
			complianceRate: factory("sla_compliance_rate", "Percentage of orders not in breach."),
			fulfillment:    factory("fulfillment_rate", "Percentage of orders delivered."),
			avgProcessing:  factory("avg_processing_minutes", "Mean minutes from order to delivery."),
			escalations:    escalations,
			connections:    factory("realtime_connections", "Connected realtime clients."),
		},
	}
}

func (e *Exporter) Enabled() bool {
	return e != nil && e.pusher != nil
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Collect refreshes every gauge from the current order and escalation state.
func (e *Exporter) Collect(ctx context.Context) error {
	counts, err := e.orders.Counts(ctx)
	if err != nil {
		return err
	}
	e.gauges.breached.Set(float64(counts.BreachCount))
	e.gauges.nearBreach.Set(float64(counts.NearBreachCount))
	e.gauges.active.Set(float64(counts.TotalProcessing))
	e.gauges.urgent.Set(float64(counts.UrgentOrders))
	e.gauges.complianceRate.Set(counts.ComplianceRate)
	e.gauges.fulfillment.Set(counts.FulfillmentRate)
	e.gauges.avgProcessing.Set(float64(counts.AvgProcessingTime))

	open, err := e.escalations.OpenCounts(ctx)
	if err != nil {
		return err
	}
	for _, severity := range []escalationdomain.Severity{
		escalationdomain.SeverityLow,
		escalationdomain.SeverityMedium,
		escalationdomain.SeverityHigh,
		escalationdomain.SeverityCritical,
	} {
		e.gauges.escalations.WithLabelValues(string(severity)).Set(float64(open[severity]))
	}

	if e.connections != nil {
		e.gauges.connections.Set(float64(e.connections.ClientCount()))
	}
	return nil
}

// Export collects and pushes. It is a no-op when no exporter is configured.
func (e *Exporter) Export(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	if err := e.Collect(ctx); err != nil {
		return fmt.Errorf("collect sla metrics: %w", err)
	}
	if err := e.pusher.Push(ctx, e.registry); err != nil {
		return err
	}
	e.log.Debug("sla metrics pushed")
	return nil
}
