package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type callState struct {
	start time.Time
	span  trace.Span
	attrs []slog.Attr
}

// sourceKind names the table source argument of a request, if any.
func sourceKind(args map[string]any) string {
	for _, key := range []string{argCSVPath, argSQL, argPGTable} {
		if stringArg(args, key) != "" {
			return key
		}
	}
	return ""
}

// callAttrs describes a tool call by tool, logical table and source.
func callAttrs(req *mcp.CallToolRequest) []slog.Attr {
	args := req.GetArguments()
	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", req.Params.Name),
	}
	if name := stringArg(args, "name"); name != "" {
		attrs = append(attrs, slog.String("colprobe.table", name))
	}
	if column := stringArg(args, "column"); column != "" {
		attrs = append(attrs, slog.String("colprobe.column", column))
	}
	if src := sourceKind(args); src != "" {
		attrs = append(attrs, slog.String("colprobe.source", src))
	}
	return attrs
}

func spanAttrs(attrs []slog.Attr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == "rpc.method" {
			continue
		}
		out = append(out, attribute.String(a.Key, a.Value.String()))
	}
	return out
}

// resultError returns the text of a tool-level error result.
func resultError(result any) (string, bool) {
	r, ok := result.(*mcp.CallToolResult)
	if !ok || !r.IsError {
		return "", false
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text, true
		}
	}
	return "tool returned error", true
}

// ToolCallHooks logs every tool call with its table and source, records
// tool duration and wraps the call in a span when a tracer is given.
// Tool-level errors (bad input, missing snapshots) log at warn; protocol
// failures log at error.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	hooks := &server.Hooks{}
	var calls sync.Map // request id -> *callState

	finish := func(id any) (*callState, time.Duration) {
		v, ok := calls.LoadAndDelete(id)
		if !ok {
			return nil, 0
		}
		state := v.(*callState)
		return state, time.Since(state.start)
	}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		state := &callState{start: time.Now(), attrs: callAttrs(req)}
		if tracer != nil {
			_, state.span = tracer.Start(ctx, "mcp.tool."+req.Params.Name,
				trace.WithAttributes(spanAttrs(state.attrs)...),
			)
		}
		calls.Store(id, state)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		state, duration := finish(id)
		attrs := callAttrs(req)
		if state != nil {
			attrs = state.attrs
		}
		attrs = append(attrs, slog.Duration("duration", duration))

		msg, failed := resultError(result)
		level := slog.LevelInfo
		if failed {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error.message", msg))
		}
		logger.LogAttrs(ctx, level, "tool call", append(attrs, slog.Bool("error", failed))...)

		if inst != nil {
			inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
		}
		if state != nil && state.span != nil {
			if failed {
				state.span.SetStatus(codes.Error, msg)
			}
			state.span.End()
		}
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		state, duration := finish(id)
		if state != nil && state.span != nil {
			state.span.RecordError(err)
			state.span.SetStatus(codes.Error, err.Error())
			state.span.End()
		}

		req, ok := message.(*mcp.CallToolRequest)
		if !ok {
			return
		}
		logger.LogAttrs(ctx, slog.LevelError, "tool call", append(callAttrs(req),
			slog.Duration("duration", duration),
			slog.Bool("error", true),
			slog.String("error.message", err.Error()),
		)...)
	})

	return hooks
}
