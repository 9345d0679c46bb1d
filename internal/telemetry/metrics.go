package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/colprobe"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	ScanCount         metric.Int64Counter
	ScanDuration      metric.Float64Histogram
	ScanErrors        metric.Int64Counter
	BootstrapDuration metric.Float64Histogram
	ToolDuration      metric.Float64Histogram
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	scanCount, _ := meter.Int64Counter("colprobe.scan.count",
		metric.WithDescription("Total number of table scans"),
	)
	scanDuration, _ := meter.Float64Histogram("colprobe.scan.duration",
		metric.WithDescription("Table scan duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	scanErrors, _ := meter.Int64Counter("colprobe.scan.errors",
		metric.WithDescription("Total number of failed table scans"),
	)
	bootstrapDuration, _ := meter.Float64Histogram("colprobe.bootstrap.duration",
		metric.WithDescription("Bootstrap resampling duration per column in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("colprobe.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		ScanCount:         scanCount,
		ScanDuration:      scanDuration,
		ScanErrors:        scanErrors,
		BootstrapDuration: bootstrapDuration,
		ToolDuration:      toolDuration,
	}
}

func (i *Instruments) RecordScanDuration(ctx context.Context, ms float64) {
	i.ScanDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementScanCount(ctx context.Context) {
	i.ScanCount.Add(ctx, 1)
}

func (i *Instruments) IncrementScanErrors(ctx context.Context) {
	i.ScanErrors.Add(ctx, 1)
}

func (i *Instruments) RecordBootstrapDuration(ctx context.Context, ms float64) {
	i.BootstrapDuration.Record(ctx, ms)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
