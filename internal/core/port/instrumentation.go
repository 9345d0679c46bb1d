package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordScanDuration(ctx context.Context, ms float64)
	IncrementScanCount(ctx context.Context)
	IncrementScanErrors(ctx context.Context)
	RecordBootstrapDuration(ctx context.Context, ms float64)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordScanDuration(context.Context, float64)      {}
func (NoopInstrumentation) IncrementScanCount(context.Context)               {}
func (NoopInstrumentation) IncrementScanErrors(context.Context)              {}
func (NoopInstrumentation) RecordBootstrapDuration(context.Context, float64) {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)      {}
