package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/guillermoBallester/colprobe/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// Services bundles the use cases exposed as tools.
type Services struct {
	Sources    *service.SourceService
	Classifier *service.ClassifierService
	Profiler   *service.TableProfiler
	Matcher    *service.DataMatcher
	Stats      *service.StatsService
}

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, svcs Services, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, svcs)

	return s
}
