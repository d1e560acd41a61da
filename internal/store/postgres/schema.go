package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Graph DDL — nodes + edges
// ─────────────────────────────────────────────────────────────────────────────

const ddlGraph = `
CREATE TABLE IF NOT EXISTS nodes (
    id          TEXT         PRIMARY KEY,
    project_id  TEXT         NOT NULL,
    label       TEXT         NOT NULL,
    name        TEXT         NOT NULL,
    properties  JSONB        NOT NULL DEFAULT '{}',
    vector_id   BIGINT,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (project_id, name)
);

CREATE INDEX IF NOT EXISTS idx_nodes_project_label ON nodes (project_id, label);

CREATE TABLE IF NOT EXISTS edges (
    id             TEXT         PRIMARY KEY,
    project_id     TEXT         NOT NULL,
    source_id      TEXT         NOT NULL REFERENCES nodes (id) ON DELETE CASCADE,
    target_id      TEXT         NOT NULL REFERENCES nodes (id) ON DELETE CASCADE,
    relation       TEXT         NOT NULL,
    weight         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    properties     JSONB        NOT NULL DEFAULT '{}',
    sector         TEXT         NOT NULL DEFAULT 'semantic',
    access_count   BIGINT       NOT NULL DEFAULT 0,
    last_accessed  TIMESTAMPTZ,
    modified_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (project_id, source_id, target_id, relation)
);

CREATE INDEX IF NOT EXISTS idx_edges_project_source ON edges (project_id, source_id);
CREATE INDEX IF NOT EXISTS idx_edges_project_target ON edges (project_id, target_id);
CREATE INDEX IF NOT EXISTS idx_edges_sector ON edges (project_id, sector);
`

// ─────────────────────────────────────────────────────────────────────────────
// Insight / episode DDL — pgvector-backed stores
// ─────────────────────────────────────────────────────────────────────────────

func ddlInsightsEpisodes(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS insights (
    id               BIGSERIAL    PRIMARY KEY,
    project_id       TEXT         NOT NULL,
    content          TEXT         NOT NULL,
    embedding        vector(%[1]d),
    source_ids       JSONB        NOT NULL DEFAULT '[]',
    memory_strength  DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    metadata         JSONB        NOT NULL DEFAULT '{}',
    tags             TEXT[]       NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_insights_project ON insights (project_id);
CREATE INDEX IF NOT EXISTS idx_insights_embedding ON insights USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_insights_fts ON insights USING GIN (to_tsvector('english', content));
CREATE INDEX IF NOT EXISTS idx_insights_tags ON insights USING GIN (tags);
CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights (created_at);

CREATE TABLE IF NOT EXISTS episodes (
    id              BIGSERIAL    PRIMARY KEY,
    project_id      TEXT         NOT NULL,
    query           TEXT         NOT NULL,
    reward          DOUBLE PRECISION NOT NULL,
    reflection      TEXT         NOT NULL DEFAULT '',
    query_embedding vector(%[1]d),
    tags            TEXT[]       NOT NULL DEFAULT '{}',
    metadata        JSONB        NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    CONSTRAINT episodes_reward_range CHECK (reward >= -1 AND reward <= 1)
);

CREATE INDEX IF NOT EXISTS idx_episodes_project ON episodes (project_id);
CREATE INDEX IF NOT EXISTS idx_episodes_embedding ON episodes USING hnsw (query_embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes (created_at);
`, embeddingDimensions)
}

// ─────────────────────────────────────────────────────────────────────────────
// Memory hierarchy DDL — raw dialogue, working memory, stale memory
// ─────────────────────────────────────────────────────────────────────────────

const ddlMemoryHierarchy = `
CREATE TABLE IF NOT EXISTS raw_dialogue (
    id          BIGSERIAL    PRIMARY KEY,
    project_id  TEXT         NOT NULL,
    session_id  TEXT         NOT NULL DEFAULT '',
    speaker     TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_dialogue_project ON raw_dialogue (project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_raw_dialogue_session ON raw_dialogue (project_id, session_id);

CREATE TABLE IF NOT EXISTS working_memory (
    id          TEXT         PRIMARY KEY,
    project_id  TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    importance  DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    accessed_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_working_memory_project ON working_memory (project_id, created_at);

CREATE TABLE IF NOT EXISTS stale_memory (
    id                   TEXT         PRIMARY KEY,
    project_id           TEXT         NOT NULL,
    content              TEXT         NOT NULL,
    importance           DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    reason               TEXT         NOT NULL DEFAULT '',
    archived_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    original_created_at  TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stale_memory_project ON stale_memory (project_id, archived_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// Constitutive audit log + nuance review DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlAuditNuance = `
CREATE TABLE IF NOT EXISTS edge_audit_log (
    id          BIGSERIAL    PRIMARY KEY,
    project_id  TEXT         NOT NULL,
    edge_id     TEXT         NOT NULL,
    action      TEXT         NOT NULL,
    actor       TEXT         NOT NULL DEFAULT '',
    blocked     BOOLEAN      NOT NULL DEFAULT false,
    reason      TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_edge_audit_log_project ON edge_audit_log (project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_edge_audit_log_edge ON edge_audit_log (edge_id);

CREATE TABLE IF NOT EXISTS nuance_reviews (
    id          BIGSERIAL    PRIMARY KEY,
    project_id  TEXT         NOT NULL,
    edge_ids    TEXT[]       NOT NULL,
    status      TEXT         NOT NULL DEFAULT 'PENDING_REVIEW',
    resolution  TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_nuance_reviews_project_status ON nuance_reviews (project_id, status);
`

// ─────────────────────────────────────────────────────────────────────────────
// Multi-tenancy DDL — project registry, read permissions
// ─────────────────────────────────────────────────────────────────────────────

const ddlTenancy = `
CREATE TABLE IF NOT EXISTS projects (
    id            TEXT         PRIMARY KEY,
    display_name  TEXT         NOT NULL,
    access_level  TEXT         NOT NULL DEFAULT 'isolated',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS read_permissions (
    reader_project TEXT        NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
    target_project TEXT        NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
    PRIMARY KEY (reader_project, target_project)
);
`

// Migrate creates or ensures all required database tables, extensions, and
// indexes exist. Idempotent (IF NOT EXISTS throughout) and safe to call on
// every process start. embeddingDimensions must match the configured
// embeddings provider and cannot change after the first migration without a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlGraph,
		ddlInsightsEpisodes(embeddingDimensions),
		ddlMemoryHierarchy,
		ddlAuditNuance,
		ddlTenancy,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
