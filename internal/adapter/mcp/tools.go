package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/guillermoBallester/colprobe/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "colprobe"

const defaultPreviewRows = 5

// Tool descriptions
const (
	descSourceCSV = "Path to a CSV file with a header row. Use exactly one of csv_path, sql or pg_table."
	descSourceSQL = "A single read-only SELECT whose result set is the table. A row cap and statement timeout apply."
	descSourcePG  = "A database relation to read whole, as table or schema.table."

	descName = "Logical table name used as the key for cached schemas and stored snapshots"

	descClassify = "Infer the semantic role of every column: numeric, datetime, id (dense +1 integer runs), " +
		"category (distinct/rows at or below the category threshold), object (everything else) and not_used " +
		"(columns dropped by policy). Also reports a cardinality class per column. " +
		"A column may appear under both datetime and another role. The schema is cached under name for apply_schema."

	descApplySchema = "Cast a table with the schema cached by classify_columns for the same name: numeric and id columns " +
		"become floats (integer columns stay integers), datetime columns become timestamps, category columns are tagged " +
		"and object columns are rendered as text. Returns the resulting dtypes, shape and a few preview rows."

	descScan = "Profile a table into a snapshot: dtypes, column list, shape, descriptive statistics and bootstrap " +
		"confidence intervals for numeric columns, runtime value types per column, and the column classification. " +
		"Unless blank_shot is true the snapshot is stored under name/version and becomes the table's last_version."

	descGetSnapshot = "Return a stored snapshot. version defaults to last_version."

	descListSnapshots = "List stored tables with their versions and last_version. Pass name to list a single table."

	descCheckDrift = "Compare fresh data with the last stored snapshot of name. Fresh data is profiled without being stored. " +
		"Reports whether every compared section matches and which sections differ."

	descBootstrap = "Estimate the mean and median of a numeric column with percentile bootstrap confidence intervals."

	descFit = "Fit gamma, lognorm, beta, burr and norm distributions to a numeric column and keep the one whose pdf best " +
		"matches the 100-bin density histogram (least sum of squared errors). The fit is kept under key for sample_distribution."

	descSample = "Draw values from a distribution previously fitted with fit_distribution."
)

func withSourceArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(argCSVPath, mcp.Description(descSourceCSV)),
		mcp.WithString(argSQL, mcp.Description(descSourceSQL)),
		mcp.WithString(argPGTable, mcp.Description(descSourcePG)),
	}
}

func newTool(name, desc string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(desc)}, opts...)...)
}

func RegisterTools(s *server.MCPServer, svcs Services) {
	s.AddTool(
		newTool("classify_columns", descClassify, append(withSourceArgs(),
			mcp.WithString("name", mcp.Required(), mcp.Description(descName)),
		)...),
		classifyHandler(svcs),
	)

	s.AddTool(
		newTool("apply_schema", descApplySchema, append(withSourceArgs(),
			mcp.WithString("name", mcp.Required(), mcp.Description(descName)),
			mcp.WithNumber("preview_rows", mcp.Description("Rows to include in the preview (default 5)")),
		)...),
		applySchemaHandler(svcs),
	)

	s.AddTool(
		newTool("scan_table", descScan, append(withSourceArgs(),
			mcp.WithString("name", mcp.Description(descName+" (required unless blank_shot)")),
			mcp.WithString("version", mcp.Description("Version label (required unless blank_shot; last_version is reserved)")),
			mcp.WithBoolean("blank_shot", mcp.Description("Profile without storing. Defaults to false.")),
		)...),
		scanHandler(svcs),
	)

	s.AddTool(
		newTool("get_snapshot", descGetSnapshot,
			mcp.WithString("name", mcp.Required(), mcp.Description(descName)),
			mcp.WithString("version", mcp.Description("Version label (default last_version)")),
		),
		getSnapshotHandler(svcs),
	)

	s.AddTool(
		newTool("list_snapshots", descListSnapshots,
			mcp.WithString("name", mcp.Description(descName)),
		),
		listSnapshotsHandler(svcs),
	)

	s.AddTool(
		newTool("check_drift", descCheckDrift, append(withSourceArgs(),
			mcp.WithString("name", mcp.Required(), mcp.Description(descName)),
			mcp.WithString("columns", mcp.Description("Comma-separated columns to keep before profiling (default: all)")),
			mcp.WithString("categories", mcp.Description("Comma-separated snapshot sections to compare, e.g. dtypes_,shape_ (default: all)")),
		)...),
		checkDriftHandler(svcs),
	)

	s.AddTool(
		newTool("bootstrap_column", descBootstrap, append(withSourceArgs(),
			mcp.WithString("column", mcp.Required(), mcp.Description("Numeric column to resample")),
			mcp.WithNumber("resamples", mcp.Description("Number of resamples (default from server config)")),
			mcp.WithNumber("confidence_level", mcp.Description("Interval level in percent, e.g. 95")),
			mcp.WithNumber("workers", mcp.Description("Parallel workers; more than one uses the parallel engine")),
			mcp.WithNumber("seed", mcp.Description("Seed for reproducible results")),
		)...),
		bootstrapHandler(svcs),
	)

	s.AddTool(
		newTool("fit_distribution", descFit, append(withSourceArgs(),
			mcp.WithString("column", mcp.Required(), mcp.Description("Numeric column to fit")),
			mcp.WithString("key", mcp.Description("Key to keep the fit under (default: the column name)")),
			mcp.WithString("families", mcp.Description("Comma-separated subset of gamma,lognorm,beta,burr,norm")),
		)...),
		fitHandler(svcs),
	)

	s.AddTool(
		newTool("sample_distribution", descSample,
			mcp.WithString("key", mcp.Required(), mcp.Description("Key used with fit_distribution")),
			mcp.WithNumber("n", mcp.Required(), mcp.Description("Number of values to draw")),
			mcp.WithNumber("seed", mcp.Description("Seed for reproducible draws")),
		),
		sampleHandler(svcs),
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func classifyHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name := stringArg(args, "name")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}

		ctx = service.WithToolName(ctx, "classify_columns")
		t, err := loadTable(ctx, svcs.Sources, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load table: %v", err)), nil
		}
		result, err := svcs.Classifier.Classify(ctx, name, t)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("classification failed: %v", err)), nil
		}
		return jsonResult(result)
	}
}

type appliedTable struct {
	Table   string                        `json:"table"`
	Dtypes  map[string]domain.ElementType `json:"dtypes"`
	Shape   [2]int                        `json:"shape"`
	Preview []map[string]any              `json:"preview"`
}

func applySchemaHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name := stringArg(args, "name")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		preview, ok, err := intArg(args, "preview_rows")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			preview = defaultPreviewRows
		}

		ctx = service.WithToolName(ctx, "apply_schema")
		t, err := loadTable(ctx, svcs.Sources, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load table: %v", err)), nil
		}
		cast, err := svcs.Classifier.Apply(ctx, name, t)
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return mcp.NewToolResultError(fmt.Sprintf("%v: run classify_columns first", err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("apply failed: %v", err)), nil
		}

		out := appliedTable{
			Table:   name,
			Dtypes:  make(map[string]domain.ElementType, cast.Width()),
			Shape:   cast.Shape(),
			Preview: make([]map[string]any, 0, min(max(preview, 0), cast.Rows())),
		}
		cols := cast.Columns()
		for _, c := range cols {
			out.Dtypes[c.Name] = c.Type
		}
		for i := 0; i < cast.Rows() && i < preview; i++ {
			row := make(map[string]any, len(cols))
			for _, c := range cols {
				row[c.Name] = c.Values[i]
			}
			out.Preview = append(out.Preview, row)
		}
		return jsonResult(out)
	}
}

type scanOutput struct {
	Table     string               `json:"table,omitempty"`
	Version   string               `json:"version,omitempty"`
	BlankShot bool                 `json:"blank_shot"`
	Snapshot  *port.SchemaSnapshot `json:"snapshot"`
	Warnings  []string             `json:"warnings,omitempty"`
}

func scanHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name := stringArg(args, "name")
		version := stringArg(args, "version")
		blank := boolArg(args, "blank_shot")
		if !blank && (name == "" || version == "") {
			return mcp.NewToolResultError("name and version are required unless blank_shot is true"), nil
		}

		ctx = service.WithToolName(ctx, "scan_table")
		t, err := loadTable(ctx, svcs.Sources, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load table: %v", err)), nil
		}
		snap, err := svcs.Profiler.Scan(ctx, t, name, version, blank)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
		}
		return jsonResult(scanOutput{
			Table:     name,
			Version:   version,
			BlankShot: blank,
			Snapshot:  snap,
			Warnings:  snap.Warnings,
		})
	}
}

func getSnapshotHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name := stringArg(args, "name")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		version := stringArg(args, "version")
		if version == "" {
			version = port.LastVersionKey
		}

		store := svcs.Profiler.Store()
		if version == port.LastVersionKey {
			resolved, snap, err := store.Latest(name)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to get snapshot: %v", err)), nil
			}
			return jsonResult(scanOutput{Table: name, Version: resolved, Snapshot: snap})
		}
		snap, err := store.Get(name, version)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get snapshot: %v", err)), nil
		}
		return jsonResult(scanOutput{Table: name, Version: version, Snapshot: snap})
	}
}

type tableVersions struct {
	Table       string   `json:"table"`
	Versions    []string `json:"versions"`
	LastVersion string   `json:"last_version"`
}

func listSnapshotsHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		store := svcs.Profiler.Store()
		names := store.Tables()
		if name := stringArg(request.GetArguments(), "name"); name != "" {
			names = []string{name}
		}

		out := make([]tableVersions, 0, len(names))
		for _, name := range names {
			last, _, err := store.Latest(name)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to list snapshots: %v", err)), nil
			}
			out = append(out, tableVersions{Table: name, Versions: store.Versions(name), LastVersion: last})
		}
		return jsonResult(out)
	}
}

func checkDriftHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name := stringArg(args, "name")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}

		ctx = service.WithToolName(ctx, "check_drift")
		t, err := loadTable(ctx, svcs.Sources, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load table: %v", err)), nil
		}
		report, err := svcs.Matcher.Match(ctx, name, t, listArg(args, "columns"), listArg(args, "categories"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("drift check failed: %v", err)), nil
		}
		return jsonResult(report)
	}
}

func bootstrapHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		column := stringArg(args, "column")
		if column == "" {
			return mcp.NewToolResultError("column is required"), nil
		}

		var params service.BootstrapParams
		var err error
		if params.Resamples, _, err = intArg(args, "resamples"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if params.ConfidenceLevel, _, err = floatArg(args, "confidence_level"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if params.Workers, _, err = intArg(args, "workers"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if params.Seed, err = seedArg(args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "bootstrap_column")
		t, err := loadTable(ctx, svcs.Sources, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load table: %v", err)), nil
		}
		result, err := svcs.Stats.Bootstrap(ctx, t, column, params)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bootstrap failed: %v", err)), nil
		}
		return jsonResult(result)
	}
}

func fitHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		column := stringArg(args, "column")
		if column == "" {
			return mcp.NewToolResultError("column is required"), nil
		}

		ctx = service.WithToolName(ctx, "fit_distribution")
		t, err := loadTable(ctx, svcs.Sources, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load table: %v", err)), nil
		}
		out, err := svcs.Stats.Fit(ctx, stringArg(args, "key"), t, column, listArg(args, "families"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fit failed: %v", err)), nil
		}
		return jsonResult(out)
	}
}

type sampleOutput struct {
	Key    string    `json:"key"`
	Values []float64 `json:"values"`
}

func sampleHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		key := stringArg(args, "key")
		if key == "" {
			return mcp.NewToolResultError("key is required"), nil
		}
		n, ok, err := intArg(args, "n")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultError("n is required"), nil
		}
		seed, err := seedArg(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		values, err := svcs.Stats.Sample(key, n, seed)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("sampling failed: %v", err)), nil
		}
		return jsonResult(sampleOutput{Key: key, Values: values})
	}
}
