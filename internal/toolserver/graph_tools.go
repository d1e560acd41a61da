package toolserver

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/ief"
	"github.com/ethrdev/cogmem/internal/propval"
)

func (s *Server) registerGraphTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graph_add_node",
		Description: "Create or update a node in the property graph, keyed by (project, name).",
	}, s.handleGraphAddNode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graph_add_edge",
		Description: "Create or update a directed edge between two nodes, creating either endpoint if it doesn't exist.",
	}, s.handleGraphAddEdge)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graph_query_neighbors",
		Description: "Traverse outward from a named node up to a given depth, optionally filtered by relation type, sector, or direction.",
	}, s.handleGraphQueryNeighbors)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graph_find_path",
		Description: "Find the shortest path between two named nodes, up to a maximum depth.",
	}, s.handleGraphFindPath)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_edge",
		Description: "Delete an edge by id. Constitutive edges require explicit consent and are otherwise blocked.",
	}, s.handleDeleteEdge)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_node_by_name",
		Description: "Look up a node by its project-unique name. Returns node:null, status:not_found when absent.",
	}, s.handleGetNodeByName)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_edge",
		Description: "Look up the edge between two named nodes for a given relation. Returns edge:null, status:not_found when absent.",
	}, s.handleGetEdge)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "count_by_type",
		Description: "Count nodes of a given label within a project.",
	}, s.handleCountByType)
}

// --- graph_add_node ---

type GraphAddNodeArgs struct {
	Project    string         `json:"project" jsonschema:"Project identifier that scopes this request"`
	Label      string         `json:"label" jsonschema:"Node label (entity type)"`
	Name       string         `json:"name" jsonschema:"Project-unique display name"`
	Properties map[string]any `json:"properties,omitempty" jsonschema:"Arbitrary node properties"`
	VectorID   *int64         `json:"vector_id,omitempty" jsonschema:"Optional id of a precomputed embedding row this node represents"`
}

type GraphAddNodeResult struct {
	NodeID   string   `json:"node_id"`
	Created  bool     `json:"created"`
	Label    string   `json:"label"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Metadata Metadata `json:"metadata"`
}

func (s *Server) handleGraphAddNode(ctx context.Context, req *mcp.CallToolRequest, args GraphAddNodeArgs) (*mcp.CallToolResult, GraphAddNodeResult, error) {
	const tool = "graph_add_node"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.Label == "" {
		errs = append(errs, errors.New("label is required"))
	}
	if args.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GraphAddNodeResult{}, nil
	}

	node, created, err := s.graph.UpsertNode(ctx, args.Project, args.Label, args.Name, args.Properties, args.VectorID)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphAddNodeResult{}, nil
	}

	result := GraphAddNodeResult{
		NodeID:   node.ID,
		Created:  created,
		Label:    node.Label,
		Name:     node.Name,
		Status:   "success",
		Metadata: withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- graph_add_edge ---

type GraphAddEdgeArgs struct {
	Project      string         `json:"project" jsonschema:"Project identifier that scopes this request"`
	SourceName   string         `json:"source_name" jsonschema:"Name of the source node"`
	TargetName   string         `json:"target_name" jsonschema:"Name of the target node"`
	Relation     string         `json:"relation" jsonschema:"Edge relation type"`
	SourceLabel  string         `json:"source_label,omitempty" jsonschema:"Label to use if the source node must be created"`
	TargetLabel  string         `json:"target_label,omitempty" jsonschema:"Label to use if the target node must be created"`
	Weight       *float64       `json:"weight,omitempty" jsonschema:"Edge weight in [0,1], defaults to 1.0"`
	Properties   map[string]any `json:"properties,omitempty" jsonschema:"Arbitrary edge properties; edge_type=constitutive marks a protected edge"`
}

type GraphAddEdgeResult struct {
	EdgeID             string   `json:"edge_id"`
	Created            bool     `json:"created"`
	SourceID           string   `json:"source_id"`
	TargetID           string   `json:"target_id"`
	Relation           string   `json:"relation"`
	Weight             float64  `json:"weight"`
	MemorySector       string   `json:"memory_sector"`
	Status             string   `json:"status"`
	Metadata           Metadata `json:"metadata"`
	SourceNodeCreated  *bool    `json:"source_node_created,omitempty"`
	TargetNodeCreated  *bool    `json:"target_node_created,omitempty"`
}

const defaultNodeLabel = "entity"

func (s *Server) handleGraphAddEdge(ctx context.Context, req *mcp.CallToolRequest, args GraphAddEdgeArgs) (*mcp.CallToolResult, GraphAddEdgeResult, error) {
	const tool = "graph_add_edge"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.SourceName == "" {
		errs = append(errs, errors.New("source_name is required"))
	}
	if args.TargetName == "" {
		errs = append(errs, errors.New("target_name is required"))
	}
	if args.Relation == "" {
		errs = append(errs, errors.New("relation is required"))
	}
	if args.Weight != nil && (*args.Weight < 0 || *args.Weight > 1) {
		errs = append(errs, errors.New("weight must be within [0,1]"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GraphAddEdgeResult{}, nil
	}

	sourceLabel := args.SourceLabel
	if sourceLabel == "" {
		sourceLabel = defaultNodeLabel
	}
	targetLabel := args.TargetLabel
	if targetLabel == "" {
		targetLabel = defaultNodeLabel
	}

	source, sourceCreated, err := s.graph.UpsertNode(ctx, args.Project, sourceLabel, args.SourceName, nil, nil)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphAddEdgeResult{}, nil
	}
	target, targetCreated, err := s.graph.UpsertNode(ctx, args.Project, targetLabel, args.TargetName, nil, nil)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphAddEdgeResult{}, nil
	}

	weight := 1.0
	if args.Weight != nil {
		weight = *args.Weight
	}

	edge, created, err := s.graph.UpsertEdge(ctx, args.Project, source.ID, target.ID, args.Relation, weight, args.Properties, "")
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphAddEdgeResult{}, nil
	}

	result := GraphAddEdgeResult{
		EdgeID:       edge.ID,
		Created:      created,
		SourceID:     edge.SourceID,
		TargetID:     edge.TargetID,
		Relation:     edge.Relation,
		Weight:       edge.Weight,
		MemorySector: edge.Sector,
		Status:       "success",
		Metadata:     withMetadata(args.Project),
	}
	if sourceCreated {
		result.SourceNodeCreated = &sourceCreated
	}
	if targetCreated {
		result.TargetNodeCreated = &targetCreated
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- graph_query_neighbors ---

type GraphQueryNeighborsArgs struct {
	Project           string         `json:"project" jsonschema:"Project identifier that scopes this request"`
	NodeName          string         `json:"node_name" jsonschema:"Name of the node to traverse from"`
	RelationType      string         `json:"relation_type,omitempty" jsonschema:"Restrict traversal to this relation"`
	Depth             int            `json:"depth,omitempty" jsonschema:"Traversal depth in [1,5], default 1"`
	Direction         string         `json:"direction,omitempty" jsonschema:"One of both, outgoing, incoming; default both"`
	IncludeSuperseded bool           `json:"include_superseded,omitempty" jsonschema:"Include edges propval considers superseded; false by default"`
	PropertiesFilter  map[string]any `json:"properties_filter,omitempty" jsonschema:"Restrict traversal to edges whose properties match: participants (string membership), participants_contains_all (list), or any other key for object containment"`
	SectorFilter      []string       `json:"sector_filter,omitempty" jsonschema:"Restrict traversal to these memory sectors"`
	UseIEF            bool           `json:"use_ief,omitempty" jsonschema:"Rank neighbors by their Integrative Evaluation Function score instead of relevance_score"`
	QueryEmbedding    []float32      `json:"query_embedding,omitempty" jsonschema:"Query embedding used by use_ief's similarity term"`
}

type neighborEntry struct {
	NodeID         string          `json:"node_id"`
	Label          string          `json:"label"`
	Name           string          `json:"name"`
	Properties     map[string]any  `json:"properties,omitempty"`
	EdgeID         string          `json:"edge_id"`
	Relation       string          `json:"relation"`
	Weight         float64         `json:"weight"`
	EdgeProperties map[string]any  `json:"edge_properties,omitempty"`
	Direction      string          `json:"direction"`
	Distance       int             `json:"distance"`
	RelevanceScore float64         `json:"relevance_score"`
	IEFScore       *float64        `json:"ief_score,omitempty"`
	IEFComponents  *ief.Components `json:"ief_components,omitempty"`
}

type GraphQueryNeighborsResult struct {
	Neighbors       []neighborEntry `json:"neighbors"`
	StartNode       string          `json:"start_node"`
	QueryParams     map[string]any  `json:"query_params"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	NeighborCount   int             `json:"neighbor_count"`
	Status          string          `json:"status"`
	Metadata        Metadata        `json:"metadata"`
}

func (s *Server) handleGraphQueryNeighbors(ctx context.Context, req *mcp.CallToolRequest, args GraphQueryNeighborsArgs) (*mcp.CallToolResult, GraphQueryNeighborsResult, error) {
	const tool = "graph_query_neighbors"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.NodeName == "" {
		errs = append(errs, errors.New("node_name is required"))
	}
	depth := args.Depth
	if depth == 0 {
		depth = 1
	}
	if depth < 1 || depth > 5 {
		errs = append(errs, errors.New("depth must be within [1,5]"))
	}
	direction := args.Direction
	if direction == "" {
		direction = graph.DirectionBoth
	}
	switch direction {
	case graph.DirectionBoth, graph.DirectionOutgoing, graph.DirectionIncoming:
	default:
		errs = append(errs, errors.New("direction must be one of both, outgoing, incoming"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GraphQueryNeighborsResult{}, nil
	}

	start := time.Now()
	startNode, err := s.graph.GetNodeByName(ctx, args.Project, args.NodeName)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphQueryNeighborsResult{}, nil
	}
	if startNode == nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, apperr.NotFoundf("node %q not found", args.NodeName)), GraphQueryNeighborsResult{}, nil
	}

	var opts []graph.TraversalOpt
	opts = append(opts, graph.WithDirection(direction))
	if args.RelationType != "" {
		opts = append(opts, graph.WithRelTypes(args.RelationType))
	}
	if len(args.SectorFilter) > 0 {
		opts = append(opts, graph.WithSectors(args.SectorFilter...))
	}
	if len(args.PropertiesFilter) > 0 {
		opts = append(opts, graph.WithPropertiesFilter(args.PropertiesFilter))
	}
	if args.IncludeSuperseded {
		opts = append(opts, graph.WithIncludeSuperseded(true))
	}

	neighbors, err := s.graph.Neighbors(ctx, args.Project, startNode.ID, depth, opts...)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphQueryNeighborsResult{}, nil
	}

	entries := make([]neighborEntry, len(neighbors))
	for i, n := range neighbors {
		entries[i] = neighborEntry{
			NodeID:         n.Node.ID,
			Label:          n.Node.Label,
			Name:           n.Node.Name,
			Properties:     n.Node.Properties,
			EdgeID:         n.EdgeID,
			Relation:       n.Relation,
			Weight:         n.Weight,
			EdgeProperties: n.EdgeProperties,
			Direction:      n.Direction,
			Distance:       n.Distance,
			RelevanceScore: n.RelevanceScore,
		}
	}

	// Neighbors already returns results sorted by relevance_score descending;
	// use_ief re-ranks by the fuller IEF composite instead, at every depth,
	// since every Neighbor now carries its own traversing edge.
	if args.UseIEF {
		s.rankNeighborsByIEF(ctx, args.Project, neighbors, args.QueryEmbedding, entries)
	}

	result := GraphQueryNeighborsResult{
		Neighbors: entries,
		StartNode: startNode.Name,
		QueryParams: map[string]any{
			"relation_type": args.RelationType,
			"depth":         depth,
			"direction":     direction,
			"use_ief":       args.UseIEF,
		},
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		NeighborCount:   len(entries),
		Status:          "success",
		Metadata:        withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// rankNeighborsByIEF reorders entries (index-aligned with neighbors) by the
// full IEF composite score in place of Neighbors' plain relevance_score.
// Since graph.Neighbor now carries its own traversing edge at every depth,
// this no longer needs a direct-edge lookup via EdgeBetween.
func (s *Server) rankNeighborsByIEF(ctx context.Context, project string, neighbors []graph.Neighbor, queryEmbedding []float32, entries []neighborEntry) {
	now := time.Now()
	lookup := func(vectorID int64) ([]float32, bool) {
		vec, ok, err := s.insights.EmbeddingByID(ctx, project, vectorID)
		if err != nil || !ok {
			return nil, false
		}
		return vec, true
	}

	for i, n := range neighbors {
		in := ief.EdgeDecayInput{
			Properties:   n.EdgeProperties,
			AccessCount:  int(n.AccessCount),
			LastAccessed: n.LastAccessed,
			ModifiedAt:   &n.ModifiedAt,
		}
		if vectorID, ok := propval.VectorID(n.EdgeProperties); ok {
			in.VectorID = vectorID
			in.HasVectorID = true
		}
		score := s.ief.Compose(n.EdgeID, in, queryEmbedding, lookup, now)
		v := score.IEFScore
		entries[i].IEFScore = &v
		c := score.Components
		entries[i].IEFComponents = &c
	}

	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].IEFScore, entries[j].IEFScore
		if si == nil || sj == nil {
			return false
		}
		return *si > *sj
	})
}

// --- graph_find_path ---

type GraphFindPathArgs struct {
	Project        string    `json:"project" jsonschema:"Project identifier that scopes this request"`
	StartNode      string    `json:"start_node" jsonschema:"Name of the starting node"`
	EndNode        string    `json:"end_node" jsonschema:"Name of the target node"`
	MaxDepth       int       `json:"max_depth,omitempty" jsonschema:"Maximum path length to search, in [1,10], default 5"`
	UseIEF         bool      `json:"use_ief,omitempty" jsonschema:"Unused for path search beyond recording the flag; paths are ranked by hop count and weight"`
	QueryEmbedding []float32 `json:"query_embedding,omitempty" jsonschema:"Unused for path search beyond recording the flag"`
}

type pathNodeView struct {
	NodeID     string         `json:"node_id"`
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

type pathEdgeView struct {
	EdgeID         string  `json:"edge_id"`
	Relation       string  `json:"relation"`
	Weight         float64 `json:"weight"`
	RelevanceScore float64 `json:"relevance_score"`
}

type pathEntry struct {
	Nodes         []pathNodeView `json:"nodes"`
	Edges         []pathEdgeView `json:"edges"`
	TotalWeight   float64        `json:"total_weight"`
	PathRelevance float64        `json:"path_relevance"`
}

type GraphFindPathResult struct {
	PathFound       bool           `json:"path_found"`
	PathLength      int            `json:"path_length"`
	Paths           []pathEntry    `json:"paths"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	QueryParams     map[string]any `json:"query_params"`
	Status          string         `json:"status"`
	Metadata        Metadata       `json:"metadata"`
}

func (s *Server) handleGraphFindPath(ctx context.Context, req *mcp.CallToolRequest, args GraphFindPathArgs) (*mcp.CallToolResult, GraphFindPathResult, error) {
	const tool = "graph_find_path"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.StartNode == "" {
		errs = append(errs, errors.New("start_node is required"))
	}
	if args.EndNode == "" {
		errs = append(errs, errors.New("end_node is required"))
	}
	maxDepth := args.MaxDepth
	if maxDepth == 0 {
		maxDepth = 5
	}
	if maxDepth < 1 || maxDepth > 10 {
		errs = append(errs, errors.New("max_depth must be within [1,10]"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GraphFindPathResult{}, nil
	}

	start := time.Now()
	fromNode, err := s.graph.GetNodeByName(ctx, args.Project, args.StartNode)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphFindPathResult{}, nil
	}
	toNode, err := s.graph.GetNodeByName(ctx, args.Project, args.EndNode)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphFindPathResult{}, nil
	}
	if fromNode == nil || toNode == nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, apperr.NotFoundf("start_node or end_node not found")), GraphFindPathResult{}, nil
	}

	paths, err := s.graph.FindPath(ctx, args.Project, fromNode.ID, toNode.ID, maxDepth)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Category == apperr.Timeout {
			s.recordToolCall(ctx, tool, "timeout")
			return s.errorResult(tool, args.Project, err), GraphFindPathResult{}, nil
		}
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GraphFindPathResult{}, nil
	}

	entries := make([]pathEntry, len(paths))
	for i, p := range paths {
		entry := pathEntry{
			Nodes:         make([]pathNodeView, len(p.Nodes)),
			Edges:         make([]pathEdgeView, len(p.Edges)),
			TotalWeight:   p.TotalWeight,
			PathRelevance: p.PathRelevance,
		}
		for j, n := range p.Nodes {
			entry.Nodes[j] = pathNodeView{NodeID: n.ID, Label: n.Label, Name: n.Name, Properties: n.Properties}
		}
		for j, e := range p.Edges {
			entry.Edges[j] = pathEdgeView{EdgeID: e.EdgeID, Relation: e.Relation, Weight: e.Weight, RelevanceScore: e.RelevanceScore}
		}
		entries[i] = entry
	}

	pathLength := 0
	if len(entries) > 0 {
		pathLength = len(entries[0].Edges)
	}

	result := GraphFindPathResult{
		PathFound:  len(entries) > 0,
		PathLength: pathLength,
		Paths:      entries,
		QueryParams: map[string]any{
			"max_depth": maxDepth,
			"use_ief":   args.UseIEF,
		},
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Status:          "success",
		Metadata:        withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- delete_edge ---

type DeleteEdgeArgs struct {
	Project      string `json:"project" jsonschema:"Project identifier that scopes this request"`
	EdgeID       string `json:"edge_id" jsonschema:"Edge id to delete"`
	ConsentGiven bool   `json:"consent_given,omitempty" jsonschema:"Required true to delete a constitutive edge"`
}

type DeleteEdgeResult struct {
	Deleted         bool     `json:"deleted"`
	EdgeID          string   `json:"edge_id"`
	WasConstitutive bool     `json:"was_constitutive"`
	Reason          string   `json:"reason,omitempty"`
	Metadata        Metadata `json:"metadata"`
}

func (s *Server) handleDeleteEdge(ctx context.Context, req *mcp.CallToolRequest, args DeleteEdgeArgs) (*mcp.CallToolResult, DeleteEdgeResult, error) {
	const tool = "delete_edge"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.EdgeID == "" {
		errs = append(errs, errors.New("edge_id is required"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), DeleteEdgeResult{}, nil
	}

	outcome, err := s.constitutive.DeleteEdge(ctx, args.Project, args.EdgeID, args.ConsentGiven, "mcp_tool_call")
	if err != nil {
		s.recordToolCall(ctx, tool, "blocked")
		return s.errorResult(tool, args.Project, err), DeleteEdgeResult{}, nil
	}

	result := DeleteEdgeResult{
		Deleted:         outcome.Deleted,
		EdgeID:          outcome.EdgeID,
		WasConstitutive: outcome.WasConstitutive,
		Reason:          outcome.Reason,
		Metadata:        withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- get_node_by_name ---

type GetNodeByNameArgs struct {
	Project string `json:"project" jsonschema:"Project identifier that scopes this request"`
	Name    string `json:"name" jsonschema:"Node name to look up"`
}

type nodeView struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

type GetNodeByNameResult struct {
	Node     *nodeView `json:"node"`
	Status   string    `json:"status"`
	Metadata Metadata  `json:"metadata"`
}

func (s *Server) handleGetNodeByName(ctx context.Context, req *mcp.CallToolRequest, args GetNodeByNameArgs) (*mcp.CallToolResult, GetNodeByNameResult, error) {
	const tool = "get_node_by_name"
	defer s.recordToolDuration(ctx, tool)()
	if args.Name == "" {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("name is required")), GetNodeByNameResult{}, nil
	}
	ctx, err := requireProject(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GetNodeByNameResult{}, nil
	}

	node, err := s.graph.GetNodeByName(ctx, args.Project, args.Name)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetNodeByNameResult{}, nil
	}
	if node == nil {
		result := GetNodeByNameResult{Node: nil, Status: "not_found", Metadata: withMetadata(args.Project)}
		s.recordToolCall(ctx, tool, "success")
		return s.textResult(result), result, nil
	}

	result := GetNodeByNameResult{
		Node:     &nodeView{ID: node.ID, Label: node.Label, Name: node.Name, Properties: node.Properties},
		Status:   "success",
		Metadata: withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- get_edge ---

type GetEdgeArgs struct {
	Project    string `json:"project" jsonschema:"Project identifier that scopes this request"`
	SourceName string `json:"source_name" jsonschema:"Name of the source node"`
	TargetName string `json:"target_name" jsonschema:"Name of the target node"`
	Relation   string `json:"relation" jsonschema:"Relation type"`
}

type edgeView struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Relation   string         `json:"relation"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties,omitempty"`
	Sector     string         `json:"sector"`
}

type GetEdgeResult struct {
	Edge     *edgeView `json:"edge"`
	Status   string    `json:"status"`
	Metadata Metadata  `json:"metadata"`
}

func (s *Server) handleGetEdge(ctx context.Context, req *mcp.CallToolRequest, args GetEdgeArgs) (*mcp.CallToolResult, GetEdgeResult, error) {
	const tool = "get_edge"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.SourceName == "" {
		errs = append(errs, errors.New("source_name is required"))
	}
	if args.TargetName == "" {
		errs = append(errs, errors.New("target_name is required"))
	}
	if args.Relation == "" {
		errs = append(errs, errors.New("relation is required"))
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), GetEdgeResult{}, nil
	}

	source, err := s.graph.GetNodeByName(ctx, args.Project, args.SourceName)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetEdgeResult{}, nil
	}
	target, err := s.graph.GetNodeByName(ctx, args.Project, args.TargetName)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetEdgeResult{}, nil
	}
	if source == nil || target == nil {
		result := GetEdgeResult{Edge: nil, Status: "not_found", Metadata: withMetadata(args.Project)}
		s.recordToolCall(ctx, tool, "success")
		return s.textResult(result), result, nil
	}

	edge, err := s.graph.EdgeBetween(ctx, args.Project, source.ID, target.ID)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), GetEdgeResult{}, nil
	}
	if edge == nil || edge.Relation != args.Relation {
		result := GetEdgeResult{Edge: nil, Status: "not_found", Metadata: withMetadata(args.Project)}
		s.recordToolCall(ctx, tool, "success")
		return s.textResult(result), result, nil
	}

	result := GetEdgeResult{
		Edge: &edgeView{
			ID: edge.ID, SourceID: edge.SourceID, TargetID: edge.TargetID,
			Relation: edge.Relation, Weight: edge.Weight, Properties: edge.Properties, Sector: edge.Sector,
		},
		Status:   "success",
		Metadata: withMetadata(args.Project),
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}

// --- count_by_type ---

type CountByTypeArgs struct {
	Project string `json:"project" jsonschema:"Project identifier that scopes this request"`
	Label   string `json:"label" jsonschema:"Node label to count"`
}

type CountByTypeResult struct {
	Label    string   `json:"label"`
	Count    int64    `json:"count"`
	Status   string   `json:"status"`
	Metadata Metadata `json:"metadata"`
}

func (s *Server) handleCountByType(ctx context.Context, req *mcp.CallToolRequest, args CountByTypeArgs) (*mcp.CallToolResult, CountByTypeResult, error) {
	const tool = "count_by_type"
	defer s.recordToolDuration(ctx, tool)()
	if args.Label == "" {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("label is required")), CountByTypeResult{}, nil
	}
	ctx, err := requireProject(ctx, args.Project)
	if err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), CountByTypeResult{}, nil
	}

	count, err := s.graph.CountByType(ctx, args.Project, args.Label)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), CountByTypeResult{}, nil
	}

	result := CountByTypeResult{Label: args.Label, Count: count, Status: "success", Metadata: withMetadata(args.Project)}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}
