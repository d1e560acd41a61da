package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/ief"
	"github.com/ethrdev/cogmem/internal/propval"
	"github.com/ethrdev/cogmem/internal/sector"
	"github.com/ethrdev/cogmem/internal/store/postgres"
)

// statementTimeoutStmt bounds FindPath's recursive search (spec §4.B/§5):
// a runaway BFS over a dense graph fails fast as a timeout error instead of
// blocking the caller.
const statementTimeoutStmt = `SET LOCAL statement_timeout = '1000ms'`

// Store is the graph engine: node/edge upsert, traversal, path search, and
// the raw delete that internal/constitutive gates with a policy check.
type Store struct {
	pool *postgres.Pool
}

// New wraps pool for graph operations.
func New(pool *postgres.Pool) *Store {
	return &Store{pool: pool}
}

var errNotFound = errors.New("graph: not found")

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// UpsertNode implements spec §4.B "Node upsert". Conflict key (project,
// name): overwrites label and properties, preserves the existing vector_id
// unless a new one is supplied. created is true only when this call inserted
// the row.
func (s *Store) UpsertNode(ctx context.Context, project, label, name string, properties map[string]any, vectorID *int64) (node Node, created bool, err error) {
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return Node{}, false, fmt.Errorf("graph: marshal node properties: %w", err)
	}

	id := uuid.NewString()
	const q = `
		INSERT INTO nodes (id, project_id, label, name, properties, vector_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (project_id, name) DO UPDATE SET
		    label      = EXCLUDED.label,
		    properties = EXCLUDED.properties,
		    vector_id  = COALESCE(EXCLUDED.vector_id, nodes.vector_id)
		RETURNING id, label, name, properties, vector_id, created_at, (xmax = 0) AS created`

	err = s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, q, id, project, label, name, propsJSON, vectorID)
		var propsOut []byte
		if scanErr := row.Scan(&node.ID, &node.Label, &node.Name, &propsOut, &node.VectorID, &node.CreatedAt, &created); scanErr != nil {
			return fmt.Errorf("graph: upsert node: %w", scanErr)
		}
		node.ProjectID = project
		if len(propsOut) > 0 {
			if jsonErr := json.Unmarshal(propsOut, &node.Properties); jsonErr != nil {
				return fmt.Errorf("graph: unmarshal node properties: %w", jsonErr)
			}
		}
		return nil
	})
	if err != nil {
		return Node{}, false, err
	}
	return node, created, nil
}

// GetNodeByName looks up a node by its project-unique display name. Returns
// (nil, nil) when not found.
func (s *Store) GetNodeByName(ctx context.Context, project, name string) (*Node, error) {
	const q = `
		SELECT id, label, name, properties, vector_id, created_at
		FROM   nodes
		WHERE  project_id = $1 AND name = $2`

	var node Node
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, project, name)
		if qErr != nil {
			return qErr
		}
		nodes, cErr := collectNodes(rows, project)
		if cErr != nil {
			return cErr
		}
		if len(nodes) == 0 {
			return errNotFound
		}
		node = nodes[0]
		return nil
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get node by name: %w", err)
	}
	return &node, nil
}

// UpsertEdge implements spec §4.B "Edge upsert". Before insert: forces
// entrenchment_level=maximal for constitutive edges, classifies the sector
// when not supplied (internal/sector), and rejects when source/target don't
// both exist in the current project. On conflict it overwrites weight,
// properties (which may reclassify the sector), and sector.
func (s *Store) UpsertEdge(ctx context.Context, project, sourceID, targetID, relation string, weight float64, properties map[string]any, sectorOverride string) (edge Edge, created bool, err error) {
	if properties == nil {
		properties = map[string]any{}
	}
	if propval.GetString(properties, "edge_type") == "constitutive" {
		properties["entrenchment_level"] = "maximal"
	}

	sec := sectorOverride
	if sec == "" {
		sec = string(sector.Classify(relation, properties))
	}

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return Edge{}, false, fmt.Errorf("graph: marshal edge properties: %w", err)
	}

	id := uuid.NewString()
	const q = `
		INSERT INTO edges (id, project_id, source_id, target_id, relation, weight, properties, sector, modified_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, now()
		WHERE EXISTS (SELECT 1 FROM nodes WHERE id = $3 AND project_id = $2)
		  AND EXISTS (SELECT 1 FROM nodes WHERE id = $4 AND project_id = $2)
		ON CONFLICT (project_id, source_id, target_id, relation) DO UPDATE SET
		    weight      = EXCLUDED.weight,
		    properties  = EXCLUDED.properties,
		    sector      = EXCLUDED.sector,
		    modified_at = now()
		RETURNING id, source_id, target_id, relation, weight, properties, sector, access_count, last_accessed, modified_at, (xmax = 0) AS created`

	err = s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, q, id, project, sourceID, targetID, relation, weight, propsJSON, sec)
		var propsOut []byte
		if scanErr := row.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.Relation, &edge.Weight, &propsOut, &edge.Sector, &edge.AccessCount, &edge.LastAccessed, &edge.ModifiedAt, &created); scanErr != nil {
			if isNoRows(scanErr) {
				return apperr.Validationf("source and target nodes must exist in the current project")
			}
			return fmt.Errorf("graph: upsert edge: %w", scanErr)
		}
		edge.ProjectID = project
		if len(propsOut) > 0 {
			if jsonErr := json.Unmarshal(propsOut, &edge.Properties); jsonErr != nil {
				return fmt.Errorf("graph: unmarshal edge properties: %w", jsonErr)
			}
		}
		return nil
	})
	if err != nil {
		return Edge{}, false, err
	}
	return edge, created, nil
}

// GetEdgeByID returns the edge by id, or (nil, nil) when not found.
func (s *Store) GetEdgeByID(ctx context.Context, project, id string) (*Edge, error) {
	const q = `
		SELECT id, source_id, target_id, relation, weight, properties, sector, access_count, last_accessed, modified_at
		FROM   edges
		WHERE  project_id = $1 AND id = $2`

	var edge Edge
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, project, id)
		if qErr != nil {
			return qErr
		}
		edges, cErr := collectEdges(rows, project)
		if cErr != nil {
			return cErr
		}
		if len(edges) == 0 {
			return errNotFound
		}
		edge = edges[0]
		return nil
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get edge: %w", err)
	}
	return &edge, nil
}

// RawDeleteEdge removes the edge unconditionally. Callers that must honor
// constitutive-edge protection go through internal/constitutive instead of
// calling this directly.
func (s *Store) RawDeleteEdge(ctx context.Context, project, id string) error {
	const q = `DELETE FROM edges WHERE project_id = $1 AND id = $2`
	return s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, project, id)
		if err != nil {
			return fmt.Errorf("graph: delete edge: %w", err)
		}
		return nil
	})
}

// Neighbors implements spec §4.B traversal: breadth-first from nodeID up to
// depth hops via a recursive CTE, cycle-safe via a visited-id array. Each
// result carries the traversing edge (properties/weight/relation/
// direction), its discovery distance, and a relevance_score computed via
// internal/ief — grounded on original_source's query_neighbors, which
// returns the same per-edge shape. The SQL final-select keeps, per node,
// the shortest-distance row (tie-broken by higher edge weight then name,
// matching `ORDER BY node_id, distance ASC, weight DESC, name ASC`);
// results are then sorted by relevance_score descending, mirroring the
// original's Python-side post-query sort. Edges superseded per
// propval.IsSuperseded are dropped unless WithIncludeSuperseded(true).
// Access statistics on outgoing edges are bumped best-effort in the
// background, per spec §3. WithDirection controls which edge direction is
// walked (outgoing by default); DirectionBoth treats edges as undirected.
func (s *Store) Neighbors(ctx context.Context, project, nodeID string, depth int, opts ...TraversalOpt) ([]Neighbor, error) {
	o := applyTraversalOpts(opts)

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	projectArg := next(project)
	startArg := next(nodeID)
	depthArg := next(depth)

	relFilter := ""
	if len(o.relTypes) > 0 {
		relFilter = "\n          AND e.relation = ANY(" + next(o.relTypes) + "::text[])"
	}
	sectorFilter := ""
	if len(o.sectors) > 0 {
		sectorFilter = "\n          AND e.sector = ANY(" + next(o.sectors) + "::text[])"
	}
	propsFilter := ""
	if len(o.propertiesFilter) > 0 {
		pf, pErr := buildPropertiesFilterSQL(o.propertiesFilter, next)
		if pErr != nil {
			return nil, pErr
		}
		propsFilter = pf
	}

	var edgeJoin, directionExpr string
	switch o.direction {
	case DirectionIncoming:
		edgeJoin = "JOIN   edges e ON e.project_id = %[1]s AND e.target_id = r.id\n\t\t    JOIN   nodes n ON n.project_id = %[1]s AND n.id = e.source_id"
		directionExpr = "'incoming'"
	case DirectionBoth:
		edgeJoin = "JOIN   edges e ON e.project_id = %[1]s AND (e.source_id = r.id OR e.target_id = r.id)\n\t\t    JOIN   nodes n ON n.project_id = %[1]s AND n.id = (CASE WHEN e.source_id = r.id THEN e.target_id ELSE e.source_id END)"
		directionExpr = "(CASE WHEN e.source_id = r.id THEN 'outgoing' ELSE 'incoming' END)"
	default:
		edgeJoin = "JOIN   edges e ON e.project_id = %[1]s AND e.source_id = r.id\n\t\t    JOIN   nodes n ON n.project_id = %[1]s AND n.id = e.target_id"
		directionExpr = "'outgoing'"
	}

	q := fmt.Sprintf(`
		WITH RECURSIVE reachable AS (
		    SELECT id, ARRAY[id] AS visited, 0 AS depth,
		           NULL::text AS edge_id, NULL::text AS relation, NULL::double precision AS weight,
		           NULL::jsonb AS edge_properties, NULL::text AS direction,
		           NULL::timestamptz AS last_accessed, NULL::bigint AS access_count, NULL::timestamptz AS modified_at
		    FROM   nodes
		    WHERE  project_id = %[1]s AND id = %[2]s

		    UNION ALL

		    SELECT n.id, r.visited || n.id, r.depth + 1,
		           e.id, e.relation, e.weight, e.properties, `+directionExpr+`,
		           e.last_accessed, e.access_count, e.modified_at
		    FROM   reachable r
		    `+edgeJoin+`
		    WHERE  r.depth < %[3]s
		      AND  NOT (n.id = ANY(r.visited))%[4]s%[5]s%[6]s
		)
		SELECT DISTINCT ON (n.id)
		    n.id, n.label, n.name, n.properties, n.vector_id, n.created_at,
		    rc.edge_id, rc.relation, rc.weight, rc.edge_properties, rc.direction,
		    rc.depth, rc.last_accessed, rc.access_count, rc.modified_at
		FROM   reachable rc
		JOIN   nodes n ON n.id = rc.id
		WHERE  rc.id != %[2]s
		ORDER  BY n.id, rc.depth ASC, rc.weight DESC NULLS LAST, n.name ASC`, projectArg, startArg, depthArg, relFilter, sectorFilter, propsFilter)

	if o.maxNodes > 0 {
		args = append(args, o.maxNodes)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	var result []Neighbor
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, args...)
		if qErr != nil {
			return qErr
		}
		neighbors, cErr := collectNeighbors(rows, project)
		if cErr != nil {
			return cErr
		}
		result = neighbors
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: neighbors: %w", err)
	}

	now := time.Now()
	for i := range result {
		result[i].RelevanceScore = ief.RelevanceScore(ief.EdgeDecayInput{
			Properties:   result[i].EdgeProperties,
			AccessCount:  int(result[i].AccessCount),
			LastAccessed: result[i].LastAccessed,
			ModifiedAt:   &result[i].ModifiedAt,
		}, now)
	}

	if !o.includeSuperseded {
		filtered := result[:0]
		for _, n := range result {
			if !propval.IsSuperseded(n.EdgeProperties) {
				filtered = append(filtered, n)
			}
		}
		result = filtered
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RelevanceScore > result[j].RelevanceScore
	})

	go s.bumpOutgoingAccessStats(context.WithoutCancel(ctx), project, nodeID)
	return result, nil
}

// buildPropertiesFilterSQL translates a properties_filter map (spec §4.B)
// into parameterized clauses ANDed onto the edge-properties predicate of a
// traversal query, grounded on original_source's
// _build_properties_filter_sql: "participants" is JSONB array-membership
// (`?`), "participants_contains_all" is array containment (`@>`), and any
// other scalar or object value is standard JSONB containment. Invalid
// shapes return a validation error.
func buildPropertiesFilterSQL(filter map[string]any, next func(any) string) (string, error) {
	var sb strings.Builder
	for key, value := range filter {
		switch key {
		case "participants":
			s, ok := value.(string)
			if !ok {
				return "", apperr.Validationf("properties_filter.participants must be a string, got %T", value)
			}
			sb.WriteString("\n          AND e.properties->'participants' ? " + next(s))

		case "participants_contains_all":
			list, ok := value.([]any)
			if !ok {
				return "", apperr.Validationf("properties_filter.participants_contains_all must be a list, got %T", value)
			}
			items := make([]string, 0, len(list))
			for _, v := range list {
				sv, ok := v.(string)
				if !ok {
					return "", apperr.Validationf("properties_filter.participants_contains_all must contain only strings")
				}
				items = append(items, sv)
			}
			js, jErr := json.Marshal(items)
			if jErr != nil {
				return "", fmt.Errorf("graph: marshal participants_contains_all: %w", jErr)
			}
			sb.WriteString("\n          AND e.properties->'participants' @> " + next(string(js)) + "::jsonb")

		default:
			switch value.(type) {
			case string, float64, bool, int, map[string]any:
			default:
				return "", apperr.Validationf("properties_filter.%s has unsupported value type %T", key, value)
			}
			js, jErr := json.Marshal(map[string]any{key: value})
			if jErr != nil {
				return "", fmt.Errorf("graph: marshal properties_filter value: %w", jErr)
			}
			sb.WriteString("\n          AND e.properties @> " + next(string(js)) + "::jsonb")
		}
	}
	return sb.String(), nil
}

// FindPath implements spec §4.B shortest-path search: a bidirectional
// recursive BFS CTE that extends each partial path by one hop in either
// direction, rejecting any extension that revisits a node, capped at
// maxDepth hops. Unlike original_source's find_path (whose base case
// admits only a direct start-end edge, an apparent bug that forecloses
// genuine multi-hop discovery), this follows spec.md's textual
// description and searches generally. Up to 10 paths are returned, ranked
// by hop count ascending then summed edge weight descending, each carrying
// per-edge relevance and a path_relevance (the product of its edges'
// relevance scores; 1.0 for the trivial start==end path). The search runs
// under a 1s statement timeout; timing out surfaces as an
// apperr.TimeoutErr so callers render {path_found:false,
// error_type:"timeout"}. Returns an empty (non-nil) slice when no path
// exists.
func (s *Store) FindPath(ctx context.Context, project, fromID, toID string, maxDepth int) ([]Path, error) {
	const q = `
		WITH RECURSIVE path_search AS (
		    SELECT id, ARRAY[id]::text[] AS node_path, ARRAY[]::text[] AS edge_path, 0 AS hops, 0::double precision AS total_weight
		    FROM   nodes
		    WHERE  project_id = $1 AND id = $2

		    UNION ALL

		    SELECT
		        (CASE WHEN e.source_id = ps.id THEN e.target_id ELSE e.source_id END),
		        ps.node_path || (CASE WHEN e.source_id = ps.id THEN e.target_id ELSE e.source_id END),
		        ps.edge_path || e.id,
		        ps.hops + 1,
		        ps.total_weight + e.weight
		    FROM   path_search ps
		    JOIN   edges e ON e.project_id = $1 AND (e.source_id = ps.id OR e.target_id = ps.id)
		    WHERE  ps.hops < $4
		      AND  NOT ((CASE WHEN e.source_id = ps.id THEN e.target_id ELSE e.source_id END) = ANY(ps.node_path))
		)
		SELECT node_path, edge_path, hops, total_weight
		FROM   path_search
		WHERE  id = $3
		ORDER  BY hops ASC, total_weight DESC
		LIMIT  10`

	type row struct {
		nodePath    []string
		edgePath    []string
		hops        int
		totalWeight float64
	}

	var rowsOut []row
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		if _, sErr := tx.Exec(ctx, statementTimeoutStmt); sErr != nil {
			return sErr
		}
		rows, qErr := tx.Query(ctx, q, project, fromID, toID, maxDepth)
		if qErr != nil {
			return qErr
		}
		collected, cErr := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
			var out row
			err := r.Scan(&out.nodePath, &out.edgePath, &out.hops, &out.totalWeight)
			return out, err
		})
		if cErr != nil {
			return cErr
		}
		rowsOut = collected
		return nil
	})
	if err != nil {
		if isTimeoutErr(err) {
			return nil, apperr.TimeoutErr("path search exceeded the statement timeout")
		}
		return nil, fmt.Errorf("graph: find path: %w", err)
	}
	if len(rowsOut) == 0 {
		return []Path{}, nil
	}

	nodeIDSet := map[string]struct{}{}
	edgeIDSet := map[string]struct{}{}
	for _, r := range rowsOut {
		for _, id := range r.nodePath {
			nodeIDSet[id] = struct{}{}
		}
		for _, id := range r.edgePath {
			edgeIDSet[id] = struct{}{}
		}
	}
	nodeIDs := make([]string, 0, len(nodeIDSet))
	for id := range nodeIDSet {
		nodeIDs = append(nodeIDs, id)
	}
	edgeIDs := make([]string, 0, len(edgeIDSet))
	for id := range edgeIDSet {
		edgeIDs = append(edgeIDs, id)
	}

	nodes, err := s.fetchNodesIn(ctx, project, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("graph: find path: fetch nodes: %w", err)
	}
	edges, err := s.fetchEdgesIn(ctx, project, edgeIDs)
	if err != nil {
		return nil, fmt.Errorf("graph: find path: fetch edges: %w", err)
	}
	nodeByID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}
	edgeByID := make(map[string]Edge, len(edges))
	for _, e := range edges {
		edgeByID[e.ID] = e
	}

	now := time.Now()
	paths := make([]Path, 0, len(rowsOut))
	var accessedEdgeIDs []string
	for _, r := range rowsOut {
		p := Path{
			Nodes:         make([]Node, 0, len(r.nodePath)),
			Edges:         make([]PathEdge, 0, len(r.edgePath)),
			TotalWeight:   r.totalWeight,
			PathRelevance: 1.0,
		}
		for _, id := range r.nodePath {
			if n, ok := nodeByID[id]; ok {
				p.Nodes = append(p.Nodes, n)
			}
		}
		for _, id := range r.edgePath {
			e, ok := edgeByID[id]
			if !ok {
				continue
			}
			relevance := ief.RelevanceScore(ief.EdgeDecayInput{
				Properties:   e.Properties,
				AccessCount:  int(e.AccessCount),
				LastAccessed: e.LastAccessed,
				ModifiedAt:   &e.ModifiedAt,
			}, now)
			p.Edges = append(p.Edges, PathEdge{
				EdgeID:         e.ID,
				Relation:       e.Relation,
				Weight:         e.Weight,
				RelevanceScore: relevance,
			})
			p.PathRelevance *= relevance
			accessedEdgeIDs = append(accessedEdgeIDs, e.ID)
		}
		paths = append(paths, p)
	}

	if len(accessedEdgeIDs) > 0 {
		go s.bumpEdgesAccessStats(context.WithoutCancel(ctx), project, accessedEdgeIDs)
	}
	return paths, nil
}

// isTimeoutErr reports whether err stems from FindPath's statement timeout
// firing (Postgres SQLSTATE 57014, query_canceled) or the Go-level context
// deadline (internal/store/postgres.Pool's per-transaction timeout).
func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" {
		return true
	}
	return false
}

// ListNodeNames returns every node name in project, for the retrieval
// engine's entity-extraction candidate set (spec §4.G).
func (s *Store) ListNodeNames(ctx context.Context, project string) ([]string, error) {
	const q = `SELECT name FROM nodes WHERE project_id = $1`
	var names []string
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, project)
		if qErr != nil {
			return qErr
		}
		collected, cErr := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
			var name string
			err := row.Scan(&name)
			return name, err
		})
		if cErr != nil {
			return cErr
		}
		names = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: list node names: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// EdgeBetween returns an edge connecting a and b in either direction
// (nil, nil if none), for get_edge's name-pair lookup. When several edges
// connect the pair, which one is returned is not defined.
func (s *Store) EdgeBetween(ctx context.Context, project, a, b string) (*Edge, error) {
	const q = `
		SELECT id, source_id, target_id, relation, weight, properties, sector, access_count, last_accessed, modified_at
		FROM   edges
		WHERE  project_id = $1 AND ((source_id = $2 AND target_id = $3) OR (source_id = $3 AND target_id = $2))
		LIMIT 1`

	var edge Edge
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, project, a, b)
		if qErr != nil {
			return qErr
		}
		edges, cErr := collectEdges(rows, project)
		if cErr != nil {
			return cErr
		}
		if len(edges) == 0 {
			return errNotFound
		}
		edge = edges[0]
		return nil
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: edge between: %w", err)
	}
	return &edge, nil
}

// CountByType returns the number of nodes in project carrying label.
func (s *Store) CountByType(ctx context.Context, project, label string) (int64, error) {
	const q = `SELECT count(*) FROM nodes WHERE project_id = $1 AND label = $2`
	var count int64
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, project, label).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("graph: count by type: %w", err)
	}
	return count, nil
}

// bumpOutgoingAccessStats best-effort bumps access_count/last_accessed on
// every outgoing edge of nodeID. Errors are swallowed; callers never block
// on this (spec §3: "non-critical best-effort write").
func (s *Store) bumpOutgoingAccessStats(ctx context.Context, project, nodeID string) {
	const q = `
		UPDATE edges
		SET    access_count = access_count + 1, last_accessed = now()
		WHERE  project_id = $1 AND source_id = $2`
	_ = s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, project, nodeID)
		return err
	})
}

func (s *Store) fetchNodesIn(ctx context.Context, project string, ids []string) ([]Node, error) {
	if len(ids) == 0 {
		return []Node{}, nil
	}
	const q = `
		SELECT id, label, name, properties, vector_id, created_at
		FROM   nodes
		WHERE  project_id = $1 AND id = ANY($2::text[])`

	var result []Node
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, project, ids)
		if qErr != nil {
			return qErr
		}
		nodes, cErr := collectNodes(rows, project)
		if cErr != nil {
			return cErr
		}
		result = nodes
		return nil
	})
	return result, err
}

func (s *Store) fetchEdgesIn(ctx context.Context, project string, ids []string) ([]Edge, error) {
	if len(ids) == 0 {
		return []Edge{}, nil
	}
	const q = `
		SELECT id, source_id, target_id, relation, weight, properties, sector, access_count, last_accessed, modified_at
		FROM   edges
		WHERE  project_id = $1 AND id = ANY($2::text[])`

	var result []Edge
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, project, ids)
		if qErr != nil {
			return qErr
		}
		edges, cErr := collectEdges(rows, project)
		if cErr != nil {
			return cErr
		}
		result = edges
		return nil
	})
	return result, err
}

// bumpEdgesAccessStats best-effort bumps access_count/last_accessed on every
// edge traversed by a FindPath search. Errors are swallowed (spec §3:
// "non-critical best-effort write").
func (s *Store) bumpEdgesAccessStats(ctx context.Context, project string, edgeIDs []string) {
	const q = `
		UPDATE edges
		SET    access_count = access_count + 1, last_accessed = now()
		WHERE  project_id = $1 AND id = ANY($2::text[])`
	_ = s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, project, edgeIDs)
		return err
	})
}

func (s *Store) fetchNodesOrdered(ctx context.Context, project string, ids []string) ([]Node, error) {
	nodes, err := s.fetchNodesIn(ctx, project, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	ordered := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			ordered = append(ordered, n)
		}
	}
	return ordered, nil
}

func collectNodes(rows pgx.Rows, project string) ([]Node, error) {
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Node, error) {
		var (
			n       Node
			propsJS []byte
		)
		if err := row.Scan(&n.ID, &n.Label, &n.Name, &propsJS, &n.VectorID, &n.CreatedAt); err != nil {
			return Node{}, err
		}
		n.ProjectID = project
		if len(propsJS) > 0 {
			if err := json.Unmarshal(propsJS, &n.Properties); err != nil {
				return Node{}, fmt.Errorf("unmarshal node properties: %w", err)
			}
		}
		if n.Properties == nil {
			n.Properties = map[string]any{}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []Node{}
	}
	return nodes, nil
}

func collectNeighbors(rows pgx.Rows, project string) ([]Neighbor, error) {
	neighbors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Neighbor, error) {
		var (
			n          Neighbor
			nodePropsJ []byte
			edgePropsJ []byte
		)
		if err := row.Scan(
			&n.Node.ID, &n.Node.Label, &n.Node.Name, &nodePropsJ, &n.Node.VectorID, &n.Node.CreatedAt,
			&n.EdgeID, &n.Relation, &n.Weight, &edgePropsJ, &n.Direction,
			&n.Distance, &n.LastAccessed, &n.AccessCount, &n.ModifiedAt,
		); err != nil {
			return Neighbor{}, err
		}
		n.Node.ProjectID = project
		if len(nodePropsJ) > 0 {
			if err := json.Unmarshal(nodePropsJ, &n.Node.Properties); err != nil {
				return Neighbor{}, fmt.Errorf("unmarshal node properties: %w", err)
			}
		}
		if n.Node.Properties == nil {
			n.Node.Properties = map[string]any{}
		}
		if len(edgePropsJ) > 0 {
			if err := json.Unmarshal(edgePropsJ, &n.EdgeProperties); err != nil {
				return Neighbor{}, fmt.Errorf("unmarshal edge properties: %w", err)
			}
		}
		if n.EdgeProperties == nil {
			n.EdgeProperties = map[string]any{}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if neighbors == nil {
		neighbors = []Neighbor{}
	}
	return neighbors, nil
}

func collectEdges(rows pgx.Rows, project string) ([]Edge, error) {
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Edge, error) {
		var (
			e       Edge
			propsJS []byte
		)
		if err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Weight, &propsJS, &e.Sector, &e.AccessCount, &e.LastAccessed, &e.ModifiedAt); err != nil {
			return Edge{}, err
		}
		e.ProjectID = project
		if len(propsJS) > 0 {
			if err := json.Unmarshal(propsJS, &e.Properties); err != nil {
				return Edge{}, fmt.Errorf("unmarshal edge properties: %w", err)
			}
		}
		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []Edge{}
	}
	return edges, nil
}
