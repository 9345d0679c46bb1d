package telemetry

import (
	"context"
	"testing"

	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.ScanCount)
	assert.NotNil(t, inst.ScanDuration)
	assert.NotNil(t, inst.ScanErrors)
	assert.NotNil(t, inst.BootstrapDuration)
	assert.NotNil(t, inst.ToolDuration)

	// Should not panic.
	inst.IncrementScanCount(context.Background())
	inst.RecordScanDuration(context.Background(), 100.0)
	inst.RecordBootstrapDuration(context.Background(), 12.5)
}

func TestInstruments_ImplementPort(t *testing.T) {
	var _ port.Instrumentation = NoopInstruments()
}

func TestInstruments_Recording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter(meterName))

	ctx := context.Background()
	inst.IncrementScanCount(ctx)
	inst.IncrementScanCount(ctx)
	inst.IncrementScanErrors(ctx)
	inst.RecordScanDuration(ctx, 20)
	inst.RecordBootstrapDuration(ctx, 5)
	inst.RecordToolDuration(ctx, 30)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make(map[string]metricdata.Aggregation)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = m.Data
	}
	assert.Len(t, names, 5)

	count, ok := names["colprobe.scan.count"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, count.DataPoints, 1)
	assert.Equal(t, int64(2), count.DataPoints[0].Value)

	boot, ok := names["colprobe.bootstrap.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, boot.DataPoints, 1)
	assert.Equal(t, uint64(1), boot.DataPoints[0].Count)
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	var p *Provider
	err := p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestProvider_NilFallsBackToNoop(t *testing.T) {
	var p *Provider
	assert.NotNil(t, p.Tracer())
	inst := p.Instruments()
	require.NotNil(t, inst)
	inst.RecordToolDuration(context.Background(), 1)
}

func TestProvider_TracerAndInstruments(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	p := &Provider{
		tp: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	ctx := context.Background()
	defer func() { _ = p.Shutdown(ctx) }()

	_, span := p.Tracer().Start(ctx, "TableProfiler.Scan")
	span.SetAttributes(attribute.String("colprobe.table", "orders"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "TableProfiler.Scan", spans[0].Name)
	assert.Equal(t, instrumentationName, spans[0].InstrumentationScope.Name)

	inst := p.Instruments()
	inst.IncrementScanCount(ctx)
	inst.IncrementScanErrors(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, meterName, rm.ScopeMetrics[0].Scope.Name)

	names := make([]string, 0, len(rm.ScopeMetrics[0].Metrics))
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"colprobe.scan.count", "colprobe.scan.errors"}, names)
}
