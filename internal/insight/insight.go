// Package insight implements the L2 compressed-insight store: semantic
// compression of source memories into a single embedded content row, with
// a fidelity check against the mean of source embeddings (spec §4.H),
// using a pgvector nearest-neighbor query shape.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultMemoryStrength is applied when the caller does not specify one
// (spec §4.H: "default memory_strength=0.5").
const defaultMemoryStrength = 0.5

// fidelityThreshold is the minimum cosine similarity between a new
// insight's embedding and the mean of its source embeddings before a
// fidelity_warning is attached to stored metadata.
const fidelityThreshold = 0.6

// Insight is a single compressed (L2) memory.
type Insight struct {
	ID             int64
	Content        string
	SourceIDs      []string
	MemoryStrength float64
	Metadata       map[string]any
	Tags           []string
}

// Result pairs an Insight with its similarity distance to a query.
type Result struct {
	Insight  Insight
	Distance float64
}

// Store manages compressed insights in Postgres with a pgvector index.
type Store struct {
	pool       *pgxpool.Pool
	embeddings embeddings.Provider
}

// New builds a Store. pool should come from postgres.Pool.Raw().
func New(pool *pgxpool.Pool, provider embeddings.Provider) *Store {
	return &Store{pool: pool, embeddings: provider}
}

// Compress implements spec §4.K's compress_to_l2_insight: embeds content,
// optionally checks fidelity against sourceIDs' own embeddings (when those
// ids name existing insights), and stores the row. A low-fidelity
// compression is still stored — the warning is attached to metadata, never
// an error. The threshold is the fixed fidelityThreshold constant;
// config.Config.FidelityThreshold is not consulted.
func (s *Store) Compress(ctx context.Context, project, content string, sourceIDs []int64, tags []string, memoryStrength float64) (Insight, error) {
	if content == "" {
		return Insight{}, apperr.Validationf("content must not be empty")
	}
	if memoryStrength == 0 {
		memoryStrength = defaultMemoryStrength
	}
	if memoryStrength < 0 || memoryStrength > 1 {
		return Insight{}, apperr.Validationf("memory_strength must be in [0, 1], got %v", memoryStrength)
	}

	vec, err := s.embeddings.Embed(ctx, content)
	if err != nil {
		return Insight{}, apperr.EmbeddingErr(err)
	}

	metadata := map[string]any{}
	if len(sourceIDs) > 0 {
		mean, found, err := s.meanSourceEmbedding(ctx, project, sourceIDs)
		if err != nil {
			return Insight{}, fmt.Errorf("insight: mean source embedding: %w", err)
		}
		if found {
			sim := cosineSimilarity(vec, mean)
			if sim < fidelityThreshold {
				metadata["fidelity_warning"] = fmt.Sprintf("compression fidelity %.3f below threshold %.3f", sim, fidelityThreshold)
			}
			metadata["fidelity_score"] = sim
		}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return Insight{}, fmt.Errorf("insight: marshal metadata: %w", err)
	}
	sourceIDsJSON, err := json.Marshal(sourceIDs)
	if err != nil {
		return Insight{}, fmt.Errorf("insight: marshal source ids: %w", err)
	}

	const q = `
		INSERT INTO insights (project_id, content, embedding, source_ids, memory_strength, metadata, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	err = s.pool.QueryRow(ctx, q, project, content, pgvector.NewVector(vec), sourceIDsJSON, memoryStrength, metadataJSON, tags).Scan(&id)
	if err != nil {
		return Insight{}, fmt.Errorf("insight: insert: %w", err)
	}

	ids := make([]string, len(sourceIDs))
	for i, v := range sourceIDs {
		ids[i] = fmt.Sprintf("%d", v)
	}
	return Insight{
		ID:             id,
		Content:        content,
		SourceIDs:      ids,
		MemoryStrength: memoryStrength,
		Metadata:       metadata,
		Tags:           tags,
	}, nil
}

// GetByID fetches a single insight, nil if not found.
func (s *Store) GetByID(ctx context.Context, project string, id int64) (*Insight, error) {
	const q = `
		SELECT id, content, source_ids, memory_strength, metadata, tags
		FROM insights WHERE project_id = $1 AND id = $2`
	row := s.pool.QueryRow(ctx, q, project, id)
	var (
		ins           Insight
		sourceIDsJSON []byte
		metadataJSON  []byte
	)
	if err := row.Scan(&ins.ID, &ins.Content, &sourceIDsJSON, &ins.MemoryStrength, &metadataJSON, &ins.Tags); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("insight: get by id: %w", err)
	}
	var rawIDs []int64
	if err := json.Unmarshal(sourceIDsJSON, &rawIDs); err != nil {
		return nil, fmt.Errorf("insight: unmarshal source ids: %w", err)
	}
	ins.SourceIDs = make([]string, len(rawIDs))
	for i, v := range rawIDs {
		ins.SourceIDs[i] = fmt.Sprintf("%d", v)
	}
	if err := json.Unmarshal(metadataJSON, &ins.Metadata); err != nil {
		return nil, fmt.Errorf("insight: unmarshal metadata: %w", err)
	}
	return &ins, nil
}

// EmbeddingByID fetches the raw embedding stored for one insight, for the
// IEF engine's semantic-similarity lookup when a graph node's vector_id
// references an insight row. ok is false when the row or its embedding is
// missing.
func (s *Store) EmbeddingByID(ctx context.Context, project string, id int64) (vec []float32, ok bool, err error) {
	const q = `SELECT embedding FROM insights WHERE project_id = $1 AND id = $2`
	var v pgvector.Vector
	if err := s.pool.QueryRow(ctx, q, project, id).Scan(&v); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insight: embedding by id: %w", err)
	}
	return v.Slice(), true, nil
}

// Filter narrows the semantic and keyword channels (spec §4.G filter
// stages): TagsFilter is array-contains-any over an insight's tags;
// DateFrom/DateTo bound created_at inclusively when non-nil.
type Filter struct {
	TagsFilter []string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// whereClause renders f's conditions starting at placeholder $(startAt+1),
// returning the SQL fragment (leading "AND ..." or "") and the extra args
// to append, in order.
func (f Filter) whereClause(startAt int) (clause string, args []any) {
	n := startAt
	next := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if len(f.TagsFilter) > 0 {
		clause += "\n		  AND tags && " + next(f.TagsFilter) + "::text[]"
	}
	if f.DateFrom != nil {
		clause += "\n		  AND created_at >= " + next(*f.DateFrom)
	}
	if f.DateTo != nil {
		clause += "\n		  AND created_at <= " + next(*f.DateTo)
	}
	return clause, args
}

// Search finds the topK insights by cosine distance to queryEmbedding,
// used internally by the retrieval engine's semantic channel (spec §4.G).
func (s *Store) Search(ctx context.Context, project string, queryEmbedding []float32, topK int, filter Filter) ([]Result, error) {
	extraWhere, extraArgs := filter.whereClause(3)
	q := fmt.Sprintf(`
		SELECT id, content, source_ids, memory_strength, metadata, tags,
		       embedding <=> $1 AS distance
		FROM insights
		WHERE project_id = $2%s
		ORDER BY distance
		LIMIT $3`, extraWhere)
	args := append([]any{pgvector.NewVector(queryEmbedding), project, topK}, extraArgs...)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("insight: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			r             Result
			sourceIDsJSON []byte
			metadataJSON  []byte
		)
		if err := row.Scan(&r.Insight.ID, &r.Insight.Content, &sourceIDsJSON, &r.Insight.MemoryStrength, &metadataJSON, &r.Insight.Tags, &r.Distance); err != nil {
			return Result{}, err
		}
		var rawIDs []int64
		if err := json.Unmarshal(sourceIDsJSON, &rawIDs); err != nil {
			return Result{}, err
		}
		r.Insight.SourceIDs = make([]string, len(rawIDs))
		for i, v := range rawIDs {
			r.Insight.SourceIDs[i] = fmt.Sprintf("%d", v)
		}
		if err := json.Unmarshal(metadataJSON, &r.Insight.Metadata); err != nil {
			return Result{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("insight: scan search results: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// KeywordResult pairs an Insight with its full-text rank (higher is more
// relevant, unlike Result.Distance).
type KeywordResult struct {
	Insight Insight
	Rank    float64
}

// SearchKeyword finds the topK insights whose content matches queryText
// via Postgres full-text search, for the retrieval engine's keyword
// channel (spec §4.G, grounded on
// original_source/mcp_server/tools/__init__.py::keyword_search).
func (s *Store) SearchKeyword(ctx context.Context, project, queryText string, topK int, filter Filter) ([]KeywordResult, error) {
	extraWhere, extraArgs := filter.whereClause(3)
	q := fmt.Sprintf(`
		SELECT id, content, source_ids, memory_strength, metadata, tags,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS rank
		FROM insights
		WHERE project_id = $2
		  AND to_tsvector('english', content) @@ plainto_tsquery('english', $1)%s
		ORDER BY rank DESC
		LIMIT $3`, extraWhere)
	args := append([]any{queryText, project, topK}, extraArgs...)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("insight: search keyword: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (KeywordResult, error) {
		var (
			r             KeywordResult
			sourceIDsJSON []byte
			metadataJSON  []byte
		)
		if err := row.Scan(&r.Insight.ID, &r.Insight.Content, &sourceIDsJSON, &r.Insight.MemoryStrength, &metadataJSON, &r.Insight.Tags, &r.Rank); err != nil {
			return KeywordResult{}, err
		}
		var rawIDs []int64
		if err := json.Unmarshal(sourceIDsJSON, &rawIDs); err != nil {
			return KeywordResult{}, err
		}
		r.Insight.SourceIDs = make([]string, len(rawIDs))
		for i, v := range rawIDs {
			r.Insight.SourceIDs[i] = fmt.Sprintf("%d", v)
		}
		if err := json.Unmarshal(metadataJSON, &r.Insight.Metadata); err != nil {
			return KeywordResult{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("insight: scan keyword results: %w", err)
	}
	if results == nil {
		results = []KeywordResult{}
	}
	return results, nil
}

// meanSourceEmbedding averages the embeddings of sourceIDs that are
// themselves existing insights. found is false when none of sourceIDs
// resolve to a stored insight, signalling the caller to skip the fidelity
// check entirely rather than divide by zero.
func (s *Store) meanSourceEmbedding(ctx context.Context, project string, sourceIDs []int64) (mean []float32, found bool, err error) {
	const q = `SELECT embedding FROM insights WHERE project_id = $1 AND id = ANY($2) AND embedding IS NOT NULL`
	rows, err := s.pool.Query(ctx, q, project, sourceIDs)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var sum []float32
	count := 0
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, false, err
		}
		slice := vec.Slice()
		if sum == nil {
			sum = make([]float32, len(slice))
		}
		for i, v := range slice {
			sum[i] += v
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if count == 0 {
		return nil, false, nil
	}
	for i := range sum {
		sum[i] /= float32(count)
	}
	return sum, true, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
