package toolserver

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/apperr"
)

func (s *Server) registerMemoryTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "compress_to_l2_insight",
		Description: "Compress one or more source memories into a single embedded insight.",
	}, s.handleCompressToL2Insight)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_episode",
		Description: "Record a reward-scored episodic memory for later analogical recall.",
	}, s.handleStoreEpisode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_working_memory",
		Description: "Add an item to the bounded working-memory buffer, evicting or archiving as needed.",
	}, s.handleUpdateWorkingMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_working_memory",
		Description: "Delete a working-memory item by id. Idempotent: deleting an absent id is not an error.",
	}, s.handleDeleteWorkingMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_insight_by_id",
		Description: "Fetch a single compressed insight by id.",
	}, s.handleGetInsightByID)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_episodes",
		Description: "List the most recently stored episodic memories.",
	}, s.handleListEpisodes)
}

// --- compress_to_l2_insight ---

type CompressToL2InsightArgs struct {
	Project        string   `json:"project" jsonschema:"Project identifier that scopes this request"`
	Content        string   `json:"content" jsonschema:"Content to compress into an insight"`
	SourceIDs      []int64  `json:"source_ids,omitempty" jsonschema:"IDs of source insights this compression summarizes"`
	Tags           []string `json:"tags,omitempty" jsonschema:"Tags to attach to the insight"`
	MemoryStrength float64  `json:"memory_strength,omitempty" jsonschema:"Memory strength in [0,1], default 0.5"`
}

type CompressToL2InsightResult struct {
	ID              int64    `json:"id"`
	EmbeddingStatus string   `json:"embedding_status"`
	FidelityScore   float64  `json:"fidelity_score"`
	MemoryStrength  float64  `json:"memory_strength"`
	Timestamp       string   `json:"timestamp"`
	Metadata        Metadata `json:"metadata"`
}

func (s *Server) handleCompressToL2Insight(ctx context.Context, req *mcp.CallToolRequest, args CompressToL2InsightArgs) (*mcp.CallToolResult, CompressToL2InsightResult, error) {
	const tool = "compress_to_l2_insight"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.Content == "" {
		errs = append(errs, errors.New("content is required"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), CompressToL2InsightResult{}, nil
	}

	ins, err := s.insights.Compress(ctx, args.Project, args.Content, args.SourceIDs, args.Tags, args.MemoryStrength)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), CompressToL2InsightResult{}, nil
	}

	fidelity := 1.0
	if v, ok := ins.Metadata["fidelity_score"].(float64); ok {
		fidelity = v
	}

	result := CompressToL2InsightResult{
		ID:              ins.ID,
		EmbeddingStatus: "success",
		FidelityScore:   fidelity,
		MemoryStrength:  ins.MemoryStrength,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Metadata:        withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- store_episode ---

type StoreEpisodeArgs struct {
	Project    string   `json:"project" jsonschema:"Project identifier that scopes this request"`
	Query      string   `json:"query" jsonschema:"The query or situation this episode records"`
	Reward     float64  `json:"reward" jsonschema:"Reward in [-1,1] reflecting how well the episode's outcome served the query"`
	Reflection string   `json:"reflection" jsonschema:"A reflection on why the episode succeeded or failed"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Tags to attach to the episode"`
}

type StoreEpisodeResult struct {
	ID              int64    `json:"id"`
	EmbeddingStatus string   `json:"embedding_status"`
	Query           string   `json:"query"`
	Reward          float64  `json:"reward"`
	CreatedAt       string   `json:"created_at"`
	Metadata        Metadata `json:"metadata"`
}

func (s *Server) handleStoreEpisode(ctx context.Context, req *mcp.CallToolRequest, args StoreEpisodeArgs) (*mcp.CallToolResult, StoreEpisodeResult, error) {
	const tool = "store_episode"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.Query == "" {
		errs = append(errs, errors.New("query is required"))
	}
	if args.Reward < -1 || args.Reward > 1 {
		errs = append(errs, errors.New("reward must be within [-1,1]"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), StoreEpisodeResult{}, nil
	}

	ep, err := s.episodes.Store(ctx, args.Project, args.Query, args.Reward, args.Reflection, args.Tags)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), StoreEpisodeResult{}, nil
	}

	result := StoreEpisodeResult{
		ID:              ep.ID,
		EmbeddingStatus: "success",
		Query:           ep.Query,
		Reward:          ep.Reward,
		CreatedAt:       ep.CreatedAt.UTC().Format(time.RFC3339),
		Metadata:        withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- update_working_memory ---

type UpdateWorkingMemoryArgs struct {
	Project    string  `json:"project" jsonschema:"Project identifier that scopes this request"`
	Content    string  `json:"content" jsonschema:"Content to add to working memory"`
	Importance float64 `json:"importance,omitempty" jsonschema:"Importance in [0,1], default 0.5"`
}

type UpdateWorkingMemoryResult struct {
	Status     string   `json:"status"`
	AddedID    string   `json:"added_id"`
	EvictedID  string   `json:"evicted_id,omitempty"`
	ArchivedID string   `json:"archived_id,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

func (s *Server) handleUpdateWorkingMemory(ctx context.Context, req *mcp.CallToolRequest, args UpdateWorkingMemoryArgs) (*mcp.CallToolResult, UpdateWorkingMemoryResult, error) {
	const tool = "update_working_memory"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.Content == "" {
		errs = append(errs, errors.New("content is required"))
	}
	importance := args.Importance
	if importance == 0 {
		importance = 0.5
	}
	if importance < 0 || importance > 1 {
		errs = append(errs, errors.New("importance must be within [0,1]"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), UpdateWorkingMemoryResult{}, nil
	}

	added, err := s.workingMem.Add(ctx, args.Project, args.Content, importance)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), UpdateWorkingMemoryResult{}, nil
	}

	result := UpdateWorkingMemoryResult{
		Status:     "success",
		AddedID:    added.AddedID,
		EvictedID:  added.EvictedID,
		ArchivedID: added.ArchivedID,
		Metadata:   withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- delete_working_memory ---

type DeleteWorkingMemoryArgs struct {
	Project string `json:"project" jsonschema:"Project identifier that scopes this request"`
	ID      string `json:"id" jsonschema:"Working-memory item id to delete"`
}

type DeleteWorkingMemoryResult struct {
	Status    string   `json:"status"`
	DeletedID string   `json:"deleted_id"`
	Metadata  Metadata `json:"metadata"`
}

func (s *Server) handleDeleteWorkingMemory(ctx context.Context, req *mcp.CallToolRequest, args DeleteWorkingMemoryArgs) (*mcp.CallToolResult, DeleteWorkingMemoryResult, error) {
	const tool = "delete_working_memory"
	defer s.recordToolDuration(ctx, tool)()
	if args.ID == "" {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("id is required")), DeleteWorkingMemoryResult{}, nil
	}
	ctx, err := requireProject(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), DeleteWorkingMemoryResult{}, nil
	}

	found, err := s.workingMem.Delete(ctx, args.Project, args.ID)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), DeleteWorkingMemoryResult{}, nil
	}

	status := "success"
	if !found {
		status = "not_found"
	}
	result := DeleteWorkingMemoryResult{Status: status, DeletedID: args.ID, Metadata: withMetadata(args.Project)}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- get_insight_by_id ---

type GetInsightByIDArgs struct {
	Project string `json:"project" jsonschema:"Project identifier that scopes this request"`
	ID      int64  `json:"id" jsonschema:"Insight id to look up"`
}

type insightView struct {
	ID             int64          `json:"id"`
	Content        string         `json:"content"`
	SourceIDs      []string       `json:"source_ids,omitempty"`
	MemoryStrength float64        `json:"memory_strength"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type GetInsightByIDResult struct {
	Insight  *insightView `json:"insight"`
	Status   string       `json:"status"`
	Metadata Metadata     `json:"metadata"`
}

func (s *Server) handleGetInsightByID(ctx context.Context, req *mcp.CallToolRequest, args GetInsightByIDArgs) (*mcp.CallToolResult, GetInsightByIDResult, error) {
	const tool = "get_insight_by_id"
	defer s.recordToolDuration(ctx, tool)()
	if args.ID == 0 {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("id is required")), GetInsightByIDResult{}, nil
	}
	ctx, err := requireProject(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GetInsightByIDResult{}, nil
	}

	ins, err := s.insights.GetByID(ctx, args.Project, args.ID)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetInsightByIDResult{}, nil
	}
	if ins == nil {
		result := GetInsightByIDResult{Insight: nil, Status: "not_found", Metadata: withMetadata(args.Project)}
		s.recordToolCall(ctx, tool, "success")
		return s.textResult(result), result, nil
	}

	result := GetInsightByIDResult{
		Insight: &insightView{
			ID: ins.ID, Content: ins.Content, SourceIDs: ins.SourceIDs,
			MemoryStrength: ins.MemoryStrength, Tags: ins.Tags, Metadata: ins.Metadata,
		},
		Status:   "success",
		Metadata: withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- list_episodes ---

type ListEpisodesArgs struct {
	Project string `json:"project" jsonschema:"Project identifier that scopes this request"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of episodes to return, default 20"`
}

type episodeView struct {
	ID         string   `json:"id"`
	Query      string   `json:"query"`
	Reward     float64  `json:"reward"`
	Reflection string   `json:"reflection"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

type ListEpisodesResult struct {
	Episodes []episodeView `json:"episodes"`
	Status   string        `json:"status"`
	Metadata Metadata      `json:"metadata"`
}

func (s *Server) handleListEpisodes(ctx context.Context, req *mcp.CallToolRequest, args ListEpisodesArgs) (*mcp.CallToolResult, ListEpisodesResult, error) {
	const tool = "list_episodes"
	defer s.recordToolDuration(ctx, tool)()
	ctx, err := requireProject(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), ListEpisodesResult{}, nil
	}

	episodes, err := s.episodes.ListRecent(ctx, args.Project, args.Limit)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), ListEpisodesResult{}, nil
	}

	views := make([]episodeView, len(episodes))
	for i, ep := range episodes {
		views[i] = episodeView{
			ID:         strconv.FormatInt(ep.ID, 10),
			Query:      ep.Query,
			Reward:     ep.Reward,
			Reflection: ep.Reflection,
			Tags:       ep.Tags,
			CreatedAt:  ep.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	result := ListEpisodesResult{Episodes: views, Status: "success", Metadata: withMetadata(args.Project)}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}
