// Package telemetry records check execution metrics with OpenTelemetry and
// exposes them for Prometheus scraping.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
)

const meterName = "github.com/blackwhitehere/acme-data-dash"

// Recorder records one metric sample per check execution.
type Recorder interface {
	RecordExecution(ctx context.Context, checkID string, status check.Status, duration time.Duration, err error)
}

// Metrics holds the execution instruments.
type Metrics struct {
	executions metric.Int64Counter
	errors     metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	executions, err := meter.Int64Counter(
		"datadash.check.executions",
		metric.WithDescription("Check executions that produced a result"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"datadash.check.errors",
		metric.WithDescription("Check executions that ended in a configuration or execution error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"datadash.check.duration_ms",
		metric.WithDescription("Check execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{executions: executions, errors: errs, duration: duration}, nil
}

// RecordExecution counts the run under check.id. A result adds check.status
// and increments executions; an error increments errors instead.
func (m *Metrics) RecordExecution(ctx context.Context, checkID string, status check.Status, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("check.id", checkID)}
	if err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		attrs = append(attrs, attribute.String("check.status", string(status)))
		m.executions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
}

// Nop returns a Recorder backed by the no-op meter.
func Nop() Recorder {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

// Provider owns the SDK meter provider and its Prometheus registry.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
	metrics  *Metrics
}

// NewPrometheus wires an SDK MeterProvider to a dedicated Prometheus registry.
func NewPrometheus() (*Provider, error) {
	reg := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))

	m, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		mp.Shutdown(context.Background())
		return nil, fmt.Errorf("creating instruments: %w", err)
	}
	return &Provider{mp: mp, registry: reg, metrics: m}, nil
}

// Metrics returns the recorder bound to this provider.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
