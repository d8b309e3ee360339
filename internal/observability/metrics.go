// Package observability wires OpenTelemetry metrics to a Prometheus endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "fieldquote"

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics holds the costing counters. A nil *Metrics records nothing.
type Metrics struct {
	estimates       metric.Int64Counter
	accepted        metric.Int64Counter
	reconciled      metric.Int64Counter
	switches        metric.Int64Counter
	switchConflicts metric.Int64Counter
	exported        metric.Int64Counter
}

// NewMetrics registers the counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.estimates, err = meter.Int64Counter("fieldquote_estimates_assembled",
		metric.WithDescription("Job estimates assembled")); err != nil {
		return nil, err
	}
	if m.accepted, err = meter.Int64Counter("fieldquote_quotes_accepted",
		metric.WithDescription("Quotes locked on acceptance")); err != nil {
		return nil, err
	}
	if m.reconciled, err = meter.Int64Counter("fieldquote_jobs_reconciled",
		metric.WithDescription("Completed jobs reconciled into performance records")); err != nil {
		return nil, err
	}
	if m.switches, err = meter.Int64Counter("fieldquote_timetrack_switches",
		metric.WithDescription("Task switches committed")); err != nil {
		return nil, err
	}
	if m.switchConflicts, err = meter.Int64Counter("fieldquote_timetrack_switch_conflicts",
		metric.WithDescription("Task switch compare-and-swap conflicts")); err != nil {
		return nil, err
	}
	if m.exported, err = meter.Int64Counter("fieldquote_feedback_exported",
		metric.WithDescription("Performance records exported for template recalculation")); err != nil {
		return nil, err
	}
	return &m, nil
}

// EstimateAssembled counts one assembled estimate by pricing source.
func (m *Metrics) EstimateAssembled(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.estimates.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// QuoteAccepted counts a newly locked quote.
func (m *Metrics) QuoteAccepted(ctx context.Context) {
	if m == nil {
		return
	}
	m.accepted.Add(ctx, 1)
}

// JobReconciled counts a performance record.
func (m *Metrics) JobReconciled(ctx context.Context, serviceType string) {
	if m == nil {
		return
	}
	m.reconciled.Add(ctx, 1, metric.WithAttributes(attribute.String("service_type", serviceType)))
}

// TaskSwitched counts a committed switch.
func (m *Metrics) TaskSwitched(ctx context.Context) {
	if m == nil {
		return
	}
	m.switches.Add(ctx, 1)
}

// SwitchConflict counts one lost compare-and-swap.
func (m *Metrics) SwitchConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.switchConflicts.Add(ctx, 1)
}

// RecordsExported counts exported performance records.
func (m *Metrics) RecordsExported(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.exported.Add(ctx, int64(n))
}
