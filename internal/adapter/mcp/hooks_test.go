package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingInstruments struct {
	mu    sync.Mutex
	tools []float64
}

func (r *recordingInstruments) RecordScanDuration(context.Context, float64)      {}
func (r *recordingInstruments) IncrementScanCount(context.Context)               {}
func (r *recordingInstruments) IncrementScanErrors(context.Context)              {}
func (r *recordingInstruments) RecordBootstrapDuration(context.Context, float64) {}
func (r *recordingInstruments) RecordToolDuration(_ context.Context, ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, ms)
}

func TestToolCallHooks(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	inst := &recordingInstruments{}

	s := NewServer("0.1.0", testServices(t, nil, logger), logger, tp.Tracer("test"), inst)
	path := writeOrdersCSV(t, 10, 1)

	decode[scanOutput](t, callTool(t, s, "scan_table", map[string]any{"csv_path": path, "name": "orders", "version": "v1"}))
	failed := callTool(t, s, "sample_distribution", map[string]any{"key": "missing", "n": 3})
	require.True(t, failed.IsError)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "mcp.tool.scan_table", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "orders", attrs["colprobe.table"])
	assert.Equal(t, argCSVPath, attrs["colprobe.source"])

	assert.Equal(t, "mcp.tool.sample_distribution", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Status().Description, "sampling failed")

	inst.mu.Lock()
	assert.Len(t, inst.tools, 2)
	inst.mu.Unlock()

	var toolLines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "tool call" {
			toolLines = append(toolLines, entry)
		}
	}
	require.Len(t, toolLines, 2)
	assert.Equal(t, "INFO", toolLines[0]["level"])
	assert.Equal(t, "scan_table", toolLines[0]["mcp.tool"])
	assert.Equal(t, "WARN", toolLines[1]["level"])
	assert.Equal(t, true, toolLines[1]["error"])
	assert.Contains(t, toolLines[1]["error.message"], "no distribution fitted")
}

func TestSourceKind(t *testing.T) {
	tests := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{}, ""},
		{map[string]any{"csv_path": "a.csv"}, argCSVPath},
		{map[string]any{"sql": "SELECT 1"}, argSQL},
		{map[string]any{"pg_table": "public.t"}, argPGTable},
		{map[string]any{"csv_path": "  "}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sourceKind(tt.args))
	}
}
