// Package episode implements episodic memory: reward-scored records of
// past query/reflection pairs, embedded for analogical recall. Grounded
// on spec §4.I and original_source/tests/test_episode_memory.py for
// reward boundary validation.
package episode

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
)

// Episode is one scored past interaction.
type Episode struct {
	ID         int64
	Query      string
	Reward     float64
	Reflection string
	Tags       []string
	CreatedAt  time.Time
}

// Result pairs an Episode with its similarity distance to a query.
type Result struct {
	Episode  Episode
	Distance float64
}

// Store manages episodic memory in Postgres with a pgvector index.
type Store struct {
	pool       *pgxpool.Pool
	embeddings embeddings.Provider
}

// New builds a Store. pool should come from postgres.Pool.Raw().
func New(pool *pgxpool.Pool, provider embeddings.Provider) *Store {
	return &Store{pool: pool, embeddings: provider}
}

// Store implements spec §4.K's store_episode: embeds query, validates
// reward to [-1, 1] (inclusive boundaries), and inserts the row.
func (s *Store) Store(ctx context.Context, project, query string, reward float64, reflection string, tags []string) (Episode, error) {
	if query == "" {
		return Episode{}, apperr.Validationf("query must not be empty")
	}
	if reward < -1 || reward > 1 {
		return Episode{}, apperr.Validationf("reward must be in [-1, 1], got %v", reward)
	}

	vec, err := s.embeddings.Embed(ctx, query)
	if err != nil {
		return Episode{}, apperr.EmbeddingErr(err)
	}

	const q = `
		INSERT INTO episodes (project_id, query, reward, reflection, query_embedding, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	var ep Episode
	ep.Query = query
	ep.Reward = reward
	ep.Reflection = reflection
	ep.Tags = tags
	err = s.pool.QueryRow(ctx, q, project, query, reward, reflection, pgvector.NewVector(vec), tags).Scan(&ep.ID, &ep.CreatedAt)
	if err != nil {
		return Episode{}, fmt.Errorf("episode: insert: %w", err)
	}
	return ep, nil
}

// ListRecent returns the most recently stored episodes, newest first.
func (s *Store) ListRecent(ctx context.Context, project string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT id, query, reward, reflection, tags, created_at
		FROM episodes WHERE project_id = $1
		ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, project, limit)
	if err != nil {
		return nil, fmt.Errorf("episode: list recent: %w", err)
	}
	episodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Episode, error) {
		var ep Episode
		err := row.Scan(&ep.ID, &ep.Query, &ep.Reward, &ep.Reflection, &ep.Tags, &ep.CreatedAt)
		return ep, err
	})
	if err != nil {
		return nil, fmt.Errorf("episode: scan recent: %w", err)
	}
	if episodes == nil {
		episodes = []Episode{}
	}
	return episodes, nil
}

// Search finds the topK episodes by cosine distance to queryEmbedding for
// analogical recall, feeding the retrieval engine's source_type_filter
// stage (spec §4.G).
func (s *Store) Search(ctx context.Context, project string, queryEmbedding []float32, topK int) ([]Result, error) {
	const q = `
		SELECT id, query, reward, reflection, tags, created_at,
		       query_embedding <=> $1 AS distance
		FROM episodes
		WHERE project_id = $2
		ORDER BY distance
		LIMIT $3`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(queryEmbedding), project, topK)
	if err != nil {
		return nil, fmt.Errorf("episode: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		err := row.Scan(&r.Episode.ID, &r.Episode.Query, &r.Episode.Reward, &r.Episode.Reflection, &r.Episode.Tags, &r.Episode.CreatedAt, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("episode: scan search: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}
