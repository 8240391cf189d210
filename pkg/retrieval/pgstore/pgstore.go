// Package pgstore implements [retrieval.Provider] on PostgreSQL with the
// pgvector extension, the same storage shape the business's L2 semantic
// index uses, partitioned per business so one tenant's knowledge base never
// leaks into another's search results.
package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/relaycall/voicegateway/pkg/retrieval"
)

var _ retrieval.Provider = (*Store)(nil)

// Store is a PostgreSQL-backed knowledge-base content store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, registers pgvector types on every new connection, and
// runs the idempotent migration for the content table.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("retrieval/pgstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("retrieval/pgstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("retrieval/pgstore: ping: %w", err)
	}
	if err := migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("retrieval/pgstore: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_content (
    content_id     TEXT        NOT NULL,
    business_id    TEXT        NOT NULL,
    category       TEXT        NOT NULL DEFAULT '',
    type           TEXT        NOT NULL DEFAULT '',
    title          TEXT        NOT NULL DEFAULT '',
    content        TEXT        NOT NULL,
    chunk_index    INT         NOT NULL DEFAULT 0,
    source_section TEXT        NOT NULL DEFAULT '',
    embedding      vector(%d),
    PRIMARY KEY (business_id, content_id)
);

CREATE INDEX IF NOT EXISTS idx_kb_content_business_id
    ON kb_content (business_id);

CREATE INDEX IF NOT EXISTS idx_kb_content_embedding
    ON kb_content USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)

	_, err := pool.Exec(ctx, ddl)
	return err
}

// IndexContent implements retrieval.Provider.
func (s *Store) IndexContent(ctx context.Context, businessID string, c retrieval.Content, embedding []float32) error {
	const q = `
		INSERT INTO kb_content
		    (content_id, business_id, category, type, title, content, chunk_index, source_section, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (business_id, content_id) DO UPDATE SET
		    category       = EXCLUDED.category,
		    type           = EXCLUDED.type,
		    title          = EXCLUDED.title,
		    content        = EXCLUDED.content,
		    chunk_index    = EXCLUDED.chunk_index,
		    source_section = EXCLUDED.source_section,
		    embedding      = EXCLUDED.embedding`

	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx, q,
		c.ContentID, businessID, c.Category, c.Type, c.Title, c.Content, c.ChunkIndex, c.SourceSection, vec,
	)
	if err != nil {
		return fmt.Errorf("retrieval/pgstore: index content: %w", err)
	}
	return nil
}

// Search implements retrieval.Provider. filter.BusinessID is required and
// always applied first, so cross-tenant content is never considered.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter retrieval.Filter) ([]retrieval.Result, error) {
	if filter.BusinessID == "" {
		return nil, fmt.Errorf("retrieval/pgstore: search: business id is required")
	}

	queryVec := pgvector.NewVector(embedding)
	args := []any{queryVec, filter.BusinessID}
	conditions := []string{"business_id = $2"}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT content_id, category, type, title, content, chunk_index, source_section, embedding <=> $1 AS distance
		FROM   kb_content
		WHERE  %s
		ORDER  BY distance
		LIMIT  %s`, strings.Join(conditions, " AND "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval/pgstore: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (retrieval.Result, error) {
		var r retrieval.Result
		if err := row.Scan(
			&r.Content.ContentID,
			&r.Content.Category,
			&r.Content.Type,
			&r.Content.Title,
			&r.Content.Content,
			&r.Content.ChunkIndex,
			&r.Content.SourceSection,
			&r.Distance,
		); err != nil {
			return retrieval.Result{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval/pgstore: scan rows: %w", err)
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return results, nil
}
