package toolserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/apperr"
)

func (s *Server) registerMiscTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_golden_test_results",
		Description: "Report the judged-true/judged-false tallies this project has accumulated through dissonance review.",
	}, s.handleGetGoldenTestResults)
}

// GetGoldenTestResultsArgs takes only the project: the upstream golden-test
// harness this mirrors (dual-judge LLM scoring against a fixed question set)
// calls out to an external judge model per case and isn't reproducible
// without that dependency, so this tool reports the nearest data this system
// actually keeps: how many nuance reviews have been resolved (judged) versus
// are still pending, per project.
type GetGoldenTestResultsArgs struct {
	Project string `json:"project" jsonschema:"Project identifier that scopes this request"`
}

type GetGoldenTestResultsResult struct {
	JudgedCount  int      `json:"judged_count"`
	PendingCount int      `json:"pending_count"`
	Status       string   `json:"status"`
	Metadata     Metadata `json:"metadata"`
}

func (s *Server) handleGetGoldenTestResults(ctx context.Context, req *mcp.CallToolRequest, args GetGoldenTestResultsArgs) (*mcp.CallToolResult, GetGoldenTestResultsResult, error) {
	const tool = "get_golden_test_results"
	defer s.recordToolDuration(ctx, tool)()
	ctx, err := requireProject(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GetGoldenTestResultsResult{}, nil
	}

	pending, err := s.nuance.GetPendingNuanceEdgeIDs(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetGoldenTestResultsResult{}, nil
	}
	judged, err := s.nuance.CountResolved(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetGoldenTestResultsResult{}, nil
	}

	result := GetGoldenTestResultsResult{
		JudgedCount:  judged,
		PendingCount: len(pending),
		Status:       "success",
		Metadata:     withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}
