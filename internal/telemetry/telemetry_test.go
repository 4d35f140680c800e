package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func TestMetrics_Executions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordExecution(ctx, "orders", check.StatusSuccess, 20*time.Millisecond, nil)
	m.RecordExecution(ctx, "orders", check.StatusFailure, 30*time.Millisecond, nil)

	rm := collect(t, reader)
	exec := findMetric(rm, "datadash.check.executions")
	if exec == nil {
		t.Fatal("datadash.check.executions not found")
	}
	if got := sumValue(t, exec); got != 2 {
		t.Errorf("expected 2 executions, got %d", got)
	}
	if errs := findMetric(rm, "datadash.check.errors"); errs != nil && sumValue(t, errs) != 0 {
		t.Errorf("expected no errors recorded")
	}

	hist := findMetric(rm, "datadash.check.duration_ms")
	if hist == nil {
		t.Fatal("datadash.check.duration_ms not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", hist.Data)
	}
	var count uint64
	for _, dp := range h.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("expected 2 duration samples, got %d", count)
	}
}

func TestMetrics_Errors(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordExecution(context.Background(), "orders", "", time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)
	errs := findMetric(rm, "datadash.check.errors")
	if errs == nil {
		t.Fatal("datadash.check.errors not found")
	}
	if got := sumValue(t, errs); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
}

func TestNop(t *testing.T) {
	Nop().RecordExecution(context.Background(), "x", check.StatusSuccess, time.Second, nil)
}

func TestPrometheusHandler(t *testing.T) {
	p, err := NewPrometheus()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(context.Background())

	p.Metrics().RecordExecution(context.Background(), "orders", check.StatusSuccess, 5*time.Millisecond, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "datadash") {
		t.Errorf("expected datadash metrics in output, got:\n%s", body)
	}
	if !strings.Contains(string(body), "orders") {
		t.Errorf("expected check id label in output")
	}
}
