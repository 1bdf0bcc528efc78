package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/agora-discourse/agora/pkg/models"
)

// Embedder turns texts into 1536-dim vectors. The discourse engine client
// satisfies this.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchService runs HNSW cosine nearest-neighbor queries and hydrates the
// hits back into posts and replies.
type SearchService struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewSearchService creates a new search service.
func NewSearchService(pool *pgxpool.Pool, embedder Embedder) *SearchService {
	if pool == nil {
		panic("pool is required")
	}
	if embedder == nil {
		panic("embedder is required")
	}
	return &SearchService{pool: pool, embedder: embedder}
}

// SearchResult is one semantic hit with its cosine similarity in [0,1].
type SearchResult struct {
	ContentType models.ContentType `json:"content_type"`
	Post        *models.Post       `json:"post,omitempty"`
	Reply       *models.Reply      `json:"reply,omitempty"`
	Similarity  float64            `json:"similarity"`
}

// Search embeds the query and returns the nearest non-deleted posts and
// replies from the content embedding table, most similar first. Content that
// was never embedded simply cannot match.
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewValidationError("q", "is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding search query: %s", ErrDependencyFailed, err)
	}
	vec := pgvector.NewVector(vectors[0])

	rows, err := s.pool.Query(ctx, `
		SELECT ce.content_type, ce.content_id, 1 - (ce.embedding <=> $1) AS similarity
		FROM content_embeddings ce
		ORDER BY ce.embedding <=> $1
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("searching content embeddings: %w", err)
	}
	defer rows.Close()

	type hit struct {
		contentType models.ContentType
		contentID   uuid.UUID
		similarity  float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.contentType, &h.contentID, &h.similarity); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching content embeddings: %w", err)
	}

	// Hydration drops hits whose content has since been soft-deleted.
	results := make([]*SearchResult, 0, len(hits))
	for _, h := range hits {
		res := &SearchResult{ContentType: h.contentType, Similarity: h.similarity}
		switch h.contentType {
		case models.ContentTypePost:
			row := s.pool.QueryRow(ctx,
				`SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, h.contentID)
			post, err := scanPost(row)
			if err != nil {
				continue
			}
			res.Post = post
		case models.ContentTypeReply:
			row := s.pool.QueryRow(ctx,
				`SELECT `+replyColumns+` FROM replies WHERE id = $1 AND deleted_at IS NULL`, h.contentID)
			reply, err := scanReply(row)
			if err != nil {
				continue
			}
			res.Reply = reply
		default:
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// UpsertContentEmbedding stores (or refreshes) the search vector for one
// piece of content. The content hash records which revision the vector was
// computed from.
func (s *SearchService) UpsertContentEmbedding(ctx context.Context, contentType models.ContentType, contentID uuid.UUID, contentHash string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_embeddings (id, content_type, content_id, content_hash, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_type, content_id)
		DO UPDATE SET embedding = EXCLUDED.embedding,
		              content_hash = EXCLUDED.content_hash,
		              updated_at = now()`,
		uuid.New(), contentType, contentID, contentHash, vec)
	if err != nil {
		return fmt.Errorf("upserting content embedding: %w", err)
	}
	return nil
}

// EmbeddedHash returns the content hash the stored vector was computed from,
// or ErrNotFound when the content was never embedded.
func (s *SearchService) EmbeddedHash(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT content_hash FROM content_embeddings
		WHERE content_type = $1 AND content_id = $2`,
		contentType, contentID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading embedded content hash: %w", err)
	}
	return hash, nil
}

// SearchConcepts returns the concept nodes nearest the query vector. Used by
// graph tooling rather than the public search endpoint.
func (s *SearchService) SearchConcepts(ctx context.Context, query string, limit int) ([]*models.ConceptNode, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewValidationError("q", "is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding concept query: %s", ErrDependencyFailed, err)
	}
	vec := pgvector.NewVector(vectors[0])

	rows, err := s.pool.Query(ctx, `
		SELECT id, term, definition, created_at
		FROM concept_nodes
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("searching concepts: %w", err)
	}
	defer rows.Close()

	var concepts []*models.ConceptNode
	for rows.Next() {
		var c models.ConceptNode
		if err := rows.Scan(&c.ID, &c.Term, &c.Definition, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning concept: %w", err)
		}
		concepts = append(concepts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching concepts: %w", err)
	}
	return concepts, nil
}
