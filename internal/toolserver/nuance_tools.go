package toolserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/apperr"
)

func (s *Server) registerNuanceTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "dissonance_check",
		Description: "Flag a set of edges as dissonant, opening a pending review.",
	}, s.handleDissonanceCheck)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "resolve_dissonance",
		Description: "Resolve a pending dissonance review with a final decision.",
	}, s.handleResolveDissonance)
}

// --- dissonance_check ---

type DissonanceCheckArgs struct {
	Project string   `json:"project" jsonschema:"Project identifier that scopes this request"`
	EdgeIDs []string `json:"edge_ids" jsonschema:"IDs of the edges found to conflict with one another"`
}

type reviewView struct {
	ID      int64    `json:"id"`
	EdgeIDs []string `json:"edge_ids"`
	Status  string   `json:"status"`
}

type DissonanceCheckResult struct {
	Review   reviewView `json:"review"`
	Status   string     `json:"status"`
	Metadata Metadata   `json:"metadata"`
}

func (s *Server) handleDissonanceCheck(ctx context.Context, req *mcp.CallToolRequest, args DissonanceCheckArgs) (*mcp.CallToolResult, DissonanceCheckResult, error) {
	const tool = "dissonance_check"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if len(args.EdgeIDs) < 2 {
		errs = append(errs, errors.New("edge_ids must name at least two conflicting edges"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), DissonanceCheckResult{}, nil
	}

	review, err := s.nuance.FlagDissonance(ctx, args.Project, args.EdgeIDs)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), DissonanceCheckResult{}, nil
	}

	result := DissonanceCheckResult{
		Review:   reviewView{ID: review.ID, EdgeIDs: review.EdgeIDs, Status: review.Status},
		Status:   "success",
		Metadata: withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- resolve_dissonance ---

type ResolveDissonanceArgs struct {
	Project    string `json:"project" jsonschema:"Project identifier that scopes this request"`
	ReviewID   int64  `json:"review_id" jsonschema:"ID of the pending review to resolve"`
	Resolution string `json:"resolution" jsonschema:"Final resolution recorded for this review"`
}

type ResolveDissonanceResult struct {
	Review   reviewView `json:"review"`
	Status   string     `json:"status"`
	Metadata Metadata   `json:"metadata"`
}

func (s *Server) handleResolveDissonance(ctx context.Context, req *mcp.CallToolRequest, args ResolveDissonanceArgs) (*mcp.CallToolResult, ResolveDissonanceResult, error) {
	const tool = "resolve_dissonance"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.ReviewID == 0 {
		errs = append(errs, errors.New("review_id is required"))
	}
	if args.Resolution == "" {
		errs = append(errs, errors.New("resolution is required"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), ResolveDissonanceResult{}, nil
	}

	review, err := s.nuance.ResolveDissonance(ctx, args.Project, args.ReviewID, args.Resolution)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), ResolveDissonanceResult{}, nil
	}

	result := ResolveDissonanceResult{
		Review:   reviewView{ID: review.ID, EdgeIDs: review.EdgeIDs, Status: review.Status},
		Status:   "success",
		Metadata: withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}
