// Package graph implements the typed property graph: node/edge upsert,
// neighbor traversal, shortest-path search, and the raw edge delete that
// internal/constitutive guards with a policy check before calling.
package graph

import "time"

// Node is an identity-stable entity scoped to a project. (project_id, name)
// is globally unique; the same name in two projects denotes two independent
// nodes.
type Node struct {
	ID         string
	ProjectID  string
	Label      string
	Name       string
	Properties map[string]any
	VectorID   *int64
	CreatedAt  time.Time
}

// Edge is a directed relationship between two nodes in the same project.
// (project_id, source_id, target_id, relation) is unique.
type Edge struct {
	ID           string
	ProjectID    string
	SourceID     string
	TargetID     string
	Relation     string
	Weight       float64
	Properties   map[string]any
	Sector       string
	AccessCount  int64
	LastAccessed *time.Time
	ModifiedAt   time.Time
}

// Neighbor is one traversal result from Neighbors: the discovered node,
// the traversing edge that reached it (properties, weight, relation,
// direction), the discovery distance in hops, and a computed
// relevance_score (spec §4.B).
type Neighbor struct {
	Node           Node
	EdgeID         string
	Relation       string
	Weight         float64
	EdgeProperties map[string]any
	Direction      string
	Distance       int
	AccessCount    int64
	LastAccessed   *time.Time
	ModifiedAt     time.Time
	RelevanceScore float64
}

// PathEdge is one traversed edge within a FindPath result, carrying its own
// relevance_score.
type PathEdge struct {
	EdgeID         string
	Relation       string
	Weight         float64
	RelevanceScore float64
}

// Path is one ranked FindPath result: the node sequence, the edges
// connecting them, the summed edge weight, and path_relevance (the product
// of every edge's relevance_score; 1.0 for the trivial start==end path).
type Path struct {
	Nodes         []Node
	Edges         []PathEdge
	TotalWeight   float64
	PathRelevance float64
}

// TraversalOpt configures Neighbors.
type TraversalOpt func(*traversalOpts)

type traversalOpts struct {
	relTypes          []string
	maxNodes          int
	sectors           []string
	direction         string
	propertiesFilter  map[string]any
	includeSuperseded bool
}

// Direction values for WithDirection (spec §4.K graph_query_neighbors).
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
	DirectionBoth     = "both"
)

// WithRelTypes restricts traversal to the given relation names.
func WithRelTypes(relTypes ...string) TraversalOpt {
	return func(o *traversalOpts) { o.relTypes = relTypes }
}

// WithMaxNodes caps the number of neighbor rows returned.
func WithMaxNodes(n int) TraversalOpt {
	return func(o *traversalOpts) { o.maxNodes = n }
}

// WithSectors restricts traversal to edges in the given memory sectors.
func WithSectors(sectors ...string) TraversalOpt {
	return func(o *traversalOpts) { o.sectors = sectors }
}

// WithDirection sets which edge direction Neighbors walks from the start
// node: DirectionOutgoing (default), DirectionIncoming, or DirectionBoth.
func WithDirection(direction string) TraversalOpt {
	return func(o *traversalOpts) { o.direction = direction }
}

// WithPropertiesFilter restricts traversal to edges whose properties match
// filter, per the participants/participants_contains_all/object-containment
// semantics in buildPropertiesFilterSQL.
func WithPropertiesFilter(filter map[string]any) TraversalOpt {
	return func(o *traversalOpts) { o.propertiesFilter = filter }
}

// WithIncludeSuperseded disables the default filtering of edges propval
// considers superseded.
func WithIncludeSuperseded(include bool) TraversalOpt {
	return func(o *traversalOpts) { o.includeSuperseded = include }
}

func applyTraversalOpts(opts []TraversalOpt) traversalOpts {
	o := traversalOpts{direction: DirectionOutgoing}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
