// Package mcp exposes the query engine as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	apperrors "github.com/duynguyendang/outgassing/pkg/common/errors"
	"github.com/duynguyendang/outgassing/pkg/compliance"
	"github.com/duynguyendang/outgassing/pkg/query"
)

const (
	ServerName = "outgassing-db"
	Version    = "0.1.0"

	SummaryURI = "outgassing://dataset/summary"
)

// Querier is the subset of query.Engine the tools call.
type Querier interface {
	SearchByName(ctx context.Context, q query.NameQuery) (*query.NameSearchResult, error)
	SearchByApplication(ctx context.Context, q query.ApplicationQuery) (*query.ApplicationSearchResult, error)
	Lookup(ctx context.Context, id string) (*query.LookupResult, error)
	Applications(ctx context.Context) (*query.ApplicationsResult, error)
	Summary(ctx context.Context) (*query.Summary, error)
}

// MCPServer wraps the engine to expose it via MCP.
type MCPServer struct {
	engine Querier
	logger *slog.Logger
	srv    *server.MCPServer
}

// New registers the tools and the summary resource.
func New(engine Querier, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	ms := &MCPServer{engine: engine, logger: logger}

	s := server.NewMCPServer(
		ServerName,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	// --- Resources ---

	s.AddResource(
		mcp.NewResource(
			SummaryURI,
			"Dataset Summary",
			mcp.WithResourceDescription("Record count, distinct materials and the most common applications"),
			mcp.WithMIMEType("application/json"),
		),
		ms.handleSummary,
	)

	// --- Tools ---

	s.AddTool(
		mcp.NewTool(
			"query_materials",
			mcp.WithDescription("Fuzzy-search materials by name and report whether each meets the TML and CVCM outgassing limits. TML is corrected for water vapor recovered (WVR) when measured."),
			mcp.WithString("material", mcp.Required(), mcp.Description("Material name or partial name")),
			mcp.WithNumber("max_tml", mcp.DefaultNumber(compliance.DefaultMaxTML), mcp.Description("Maximum adjusted TML in percent (default 1.0)")),
			mcp.WithNumber("max_cvcm", mcp.DefaultNumber(compliance.DefaultMaxCVCM), mcp.Description("Maximum CVCM in percent (default 0.1)")),
			mcp.WithNumber("limit", mcp.DefaultNumber(query.DefaultLimit), mcp.Description("Max number of results (default 10)")),
			mcp.WithBoolean("compliant_only", mcp.Description("Return only materials meeting both limits")),
			mcp.WithBoolean("include_details", mcp.Description("Include manufacturer and WVR in each result")),
		),
		ms.handleQueryMaterials,
	)

	s.AddTool(
		mcp.NewTool(
			"get_material",
			mcp.WithDescription("Get the full record for a material by its exact ID."),
			mcp.WithString("material_id", mcp.Required(), mcp.Description("Material ID, e.g. GSC12345")),
		),
		ms.handleGetMaterial,
	)

	s.AddTool(
		mcp.NewTool(
			"get_applications",
			mcp.WithDescription("List every distinct material usage (application) in the database."),
		),
		ms.handleGetApplications,
	)

	s.AddTool(
		mcp.NewTool(
			"query_application",
			mcp.WithDescription("Find compliant materials whose usage contains the given application, lowest adjusted TML first."),
			mcp.WithString("application", mcp.Required(), mcp.Description("Application or usage keyword, e.g. ADHESIVE")),
			mcp.WithNumber("max_tml", mcp.DefaultNumber(compliance.DefaultMaxTML), mcp.Description("Maximum adjusted TML in percent (default 1.0)")),
			mcp.WithNumber("max_cvcm", mcp.DefaultNumber(compliance.DefaultMaxCVCM), mcp.Description("Maximum CVCM in percent (default 0.1)")),
			mcp.WithBoolean("include_details", mcp.Description("Include manufacturer and WVR in each result")),
		),
		ms.handleQueryApplication,
	)

	ms.srv = s
	return ms
}

// Run serves on stdio until the client disconnects.
func (ms *MCPServer) Run() error {
	ms.logger.Info("Starting MCP server on Stdio", "name", ServerName, "version", Version)
	return server.ServeStdio(ms.srv)
}

// --- Resource Handlers ---

func (ms *MCPServer) handleSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	summary, err := ms.engine.Summary(ctx)
	if err != nil {
		return nil, err
	}
	jsonBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

// --- Tool Handlers ---

func (ms *MCPServer) handleQueryMaterials(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	material, ok := args["material"].(string)
	if !ok {
		return errorResult(fmt.Errorf("%w: material argument required", apperrors.ErrInvalidInput)), nil
	}

	q := query.NameQuery{
		Material:       material,
		CompliantOnly:  optionalBool(args, "compliant_only"),
		IncludeDetails: optionalBool(args, "include_details"),
	}
	var err error
	if q.MaxTML, err = optionalNumber(args, "max_tml"); err != nil {
		return errorResult(err), nil
	}
	if q.MaxCVCM, err = optionalNumber(args, "max_cvcm"); err != nil {
		return errorResult(err), nil
	}
	if q.Limit, err = optionalInt(args, "limit"); err != nil {
		return errorResult(err), nil
	}

	res, err := ms.engine.SearchByName(ctx, q)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

func (ms *MCPServer) handleGetMaterial(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, ok := args["material_id"].(string)
	if !ok {
		return errorResult(fmt.Errorf("%w: material_id argument required", apperrors.ErrInvalidInput)), nil
	}

	res, err := ms.engine.Lookup(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

func (ms *MCPServer) handleGetApplications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := ms.engine.Applications(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

func (ms *MCPServer) handleQueryApplication(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	application, ok := args["application"].(string)
	if !ok {
		return errorResult(fmt.Errorf("%w: application argument required", apperrors.ErrInvalidInput)), nil
	}

	q := query.ApplicationQuery{
		Application:    application,
		IncludeDetails: optionalBool(args, "include_details"),
	}
	var err error
	if q.MaxTML, err = optionalNumber(args, "max_tml"); err != nil {
		return errorResult(err), nil
	}
	if q.MaxCVCM, err = optionalNumber(args, "max_cvcm"); err != nil {
		return errorResult(err), nil
	}

	res, err := ms.engine.SearchByApplication(ctx, q)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

// --- Helpers ---

func optionalNumber(args map[string]any, key string) (*float64, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	v, ok := raw.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a number", apperrors.ErrInvalidInput, key)
	}
	return &v, nil
}

func optionalInt(args map[string]any, key string) (int, error) {
	v, err := optionalNumber(args, key)
	if err != nil || v == nil {
		return 0, err
	}
	if *v != math.Trunc(*v) || math.Abs(*v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer", apperrors.ErrInvalidInput, key)
	}
	return int(*v), nil
}

func optionalBool(args map[string]any, key string) *bool {
	if b, ok := args[key].(bool); ok {
		return &b
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// errorResult reports err as a tool-level failure carrying the structured
// error payload.
func errorResult(err error) *mcp.CallToolResult {
	jsonBytes, merr := json.Marshal(apperrors.Payload(err))
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(jsonBytes))
}
