// Package toolserver implements the MCP tool dispatcher: one generic
// mcp.AddTool registration per tool in spec §4.K, wired to the domain
// stores in internal/graph, internal/insight, internal/episode,
// internal/workingmem, internal/nuance, internal/constitutive,
// internal/retrieval, and internal/ief. Grounded on the generic typed
// mcp.AddTool[ArgsT, ResultT] pattern from
// other_examples/6cf1b98b_TheApeMachine-romanroom (argument structs tagged
// jsonschema:"...", handlers returning (*mcp.CallToolResult, ResultT,
// error)) and on the addTool/errResult helper shape from
// other_examples/e51902ec_DeusData-codebase-memory-mcp for rendering
// error responses as structured JSON text content rather than bare Go
// errors.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/constitutive"
	"github.com/ethrdev/cogmem/internal/episode"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/ief"
	"github.com/ethrdev/cogmem/internal/insight"
	"github.com/ethrdev/cogmem/internal/nuance"
	"github.com/ethrdev/cogmem/internal/observe"
	"github.com/ethrdev/cogmem/internal/retrieval"
	"github.com/ethrdev/cogmem/internal/tenancy"
	"github.com/ethrdev/cogmem/internal/workingmem"
)

// Server wraps the MCP server with every domain store it dispatches tool
// calls to.
type Server struct {
	mcp *mcp.Server

	graph        *graph.Store
	constitutive *constitutive.Guard
	insights     *insight.Store
	episodes     *episode.Store
	workingMem   *workingmem.Store
	nuance       *nuance.Engine
	retrieval    *retrieval.Engine
	ief          *ief.Engine
	metrics      *observe.Metrics
}

// Deps bundles the stores a Server dispatches to, so NewServer's
// signature doesn't grow with every added tool.
type Deps struct {
	Graph        *graph.Store
	Constitutive *constitutive.Guard
	Insights     *insight.Store
	Episodes     *episode.Store
	WorkingMem   *workingmem.Store
	Nuance       *nuance.Engine
	Retrieval    *retrieval.Engine
	IEF          *ief.Engine
	Metrics      *observe.Metrics
}

// NewServer builds the MCP server, registers every tool, and returns it
// ready to run over a transport (cmd/cogmemd wires stdio).
func NewServer(name, version string, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	s := &Server{
		graph:        deps.Graph,
		constitutive: deps.Constitutive,
		insights:     deps.Insights,
		episodes:     deps.Episodes,
		workingMem:   deps.WorkingMem,
		nuance:       deps.Nuance,
		retrieval:    deps.Retrieval,
		ief:          deps.IEF,
		metrics:      deps.Metrics,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{})
	s.registerTools()
	return s
}

// MCPServer returns the underlying server for transport wiring and
// resource registration (internal/resources registers onto the same
// instance).
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.registerGraphTools()
	s.registerRetrievalTools()
	s.registerMemoryTools()
	s.registerNuanceTools()
	s.registerMiscTools()
}

// Metadata is the FR29-equivalent envelope every tool response carries,
// success or error (spec §4.K, grounded on
// original_source/mcp_server/utils/response.py::add_response_metadata).
type Metadata struct {
	ProjectID string `json:"project_id"`
}

func withMetadata(project string) Metadata {
	return Metadata{ProjectID: project}
}

// errorBody is the wire shape of a failed tool call:
// {error, details, tool, metadata, [error_type]}.
type errorBody struct {
	Error     string   `json:"error"`
	Details   string   `json:"details"`
	Tool      string   `json:"tool"`
	Metadata  Metadata `json:"metadata"`
	ErrorType string   `json:"error_type,omitempty"`
}

// asAppErr coerces any error into an *apperr.Error, wrapping opaque
// errors as DatabaseFailed so every tool response carries a category.
func asAppErr(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Wrap(err)
}

// errorResult renders err as the tool's structured error response. It
// never returns a Go error itself — every failure mode the spec defines
// is a successful MCP call carrying IsError:true, not a protocol fault.
func (s *Server) errorResult(tool, project string, err error) *mcp.CallToolResult {
	ae := asAppErr(err).WithTool(tool)
	body := errorBody{
		Error:     string(ae.Category),
		Details:   ae.Details,
		Tool:      ae.Tool,
		Metadata:  withMetadata(project),
		ErrorType: ae.ErrorType,
	}
	b, _ := json.Marshal(body)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
		IsError: true,
	}
}

// textResult renders a successful structured result as the tool's
// human-readable content, mirroring DeusData's jsonResult helper.
func (s *Server) textResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}
}

// requireProject validates the project field common to every tool's
// argument struct and threads it into ctx for downstream store calls.
func requireProject(ctx context.Context, project string) (context.Context, error) {
	if project == "" {
		return ctx, errors.New("project is required")
	}
	return tenancy.WithProject(ctx, project), nil
}

// recordToolDuration starts a timer for tool's execution-latency
// histogram. Call the returned func when the handler returns, typically
// via defer right after declaring the tool's name constant.
func (s *Server) recordToolDuration(ctx context.Context, tool string) func() {
	start := time.Now()
	return func() {
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func (s *Server) recordToolCall(ctx context.Context, tool, status string) {
	s.metrics.RecordToolCall(ctx, tool, status)
}
