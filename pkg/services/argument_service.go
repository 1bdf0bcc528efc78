package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// ArgumentService serves the legacy V2 argument surface read-only: ADUs,
// canonical claims, their relations, and claim-similar posts.
type ArgumentService struct {
	pool *pgxpool.Pool
}

// NewArgumentService creates a new argument service.
func NewArgumentService(pool *pgxpool.Pool) *ArgumentService {
	if pool == nil {
		panic("pool is required")
	}
	return &ArgumentService{pool: pool}
}

// ListADUs returns a post's argument discourse units in span order.
func (s *ArgumentService) ListADUs(ctx context.Context, postID uuid.UUID) ([]*models.ADU, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_type, source_id, adu_type, content, span_start, span_end,
			confidence, canonical_claim_id, created_at
		FROM adus
		WHERE source_type = 'post' AND source_id = $1
		ORDER BY span_start`, postID)
	if err != nil {
		return nil, fmt.Errorf("listing adus: %w", err)
	}
	defer rows.Close()

	var adus []*models.ADU
	for rows.Next() {
		var a models.ADU
		err := rows.Scan(&a.ID, &a.SourceType, &a.SourceID, &a.ADUType, &a.Content,
			&a.SpanStart, &a.SpanEnd, &a.Confidence, &a.CanonicalClaimID, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning adu: %w", err)
		}
		adus = append(adus, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing adus: %w", err)
	}
	return adus, nil
}

// GetCanonicalClaim returns a canonical claim by id.
func (s *ArgumentService) GetCanonicalClaim(ctx context.Context, id uuid.UUID) (*models.CanonicalClaim, error) {
	var c models.CanonicalClaim
	err := s.pool.QueryRow(ctx, `
		SELECT id, author_id, text, claim_count, created_at, updated_at
		FROM canonical_claims WHERE id = $1`, id).
		Scan(&c.ID, &c.AuthorID, &c.Text, &c.ClaimCount, &c.CreatedAt, &c.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching canonical claim: %w", err)
	}
	return &c, nil
}

// ListRelations returns the relations touching an ADU, in either direction.
func (s *ArgumentService) ListRelations(ctx context.Context, aduID uuid.UUID) ([]*models.ADURelation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_adu_id, to_adu_id, relation_type, confidence, created_at
		FROM adu_relations
		WHERE from_adu_id = $1 OR to_adu_id = $1
		ORDER BY created_at`, aduID)
	if err != nil {
		return nil, fmt.Errorf("listing adu relations: %w", err)
	}
	defer rows.Close()

	var relations []*models.ADURelation
	for rows.Next() {
		var r models.ADURelation
		err := rows.Scan(&r.ID, &r.FromADUID, &r.ToADUID, &r.RelationType, &r.Confidence, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning adu relation: %w", err)
		}
		relations = append(relations, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing adu relations: %w", err)
	}
	return relations, nil
}

// RelatedPosts returns posts whose embeddings sit nearest a canonical claim's
// embedding, with similarity scores. A claim without an embedding has no
// related posts.
func (s *ArgumentService) RelatedPosts(ctx context.Context, claimID uuid.UUID, excludeSourceID *uuid.UUID, limit int) ([]*models.RelatedPost, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var hasEmbedding bool
	err := s.pool.QueryRow(ctx,
		`SELECT embedding IS NOT NULL FROM canonical_claims WHERE id = $1`, claimID).
		Scan(&hasEmbedding)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking claim embedding: %w", err)
	}
	if !hasEmbedding {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixedPostColumns("p")+`,
			1 - (ce.embedding <=> cc.embedding) AS similarity
		FROM canonical_claims cc
		JOIN content_embeddings ce ON ce.content_type = 'post'
		JOIN posts p ON p.id = ce.content_id AND p.deleted_at IS NULL
		WHERE cc.id = $1
		  AND ($2::uuid IS NULL OR p.id <> $2)
		ORDER BY ce.embedding <=> cc.embedding
		LIMIT $3`, claimID, excludeSourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying related posts: %w", err)
	}
	defer rows.Close()

	var related []*models.RelatedPost
	for rows.Next() {
		var p models.Post
		var similarity float64
		err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.AnalysisContentHash,
			&p.Score, &p.VoteCount, &p.ReplyCount, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
			&similarity)
		if err != nil {
			return nil, fmt.Errorf("scanning related post: %w", err)
		}
		related = append(related, &models.RelatedPost{Post: &p, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying related posts: %w", err)
	}
	return related, nil
}

// prefixedPostColumns qualifies the shared post column list with a table
// alias for joined queries.
func prefixedPostColumns(alias string) string {
	return alias + `.id, ` + alias + `.author_id, ` + alias + `.title, ` + alias + `.content,
		COALESCE(` + alias + `.analysis_content_hash, ''), ` + alias + `.score, ` + alias + `.vote_count,
		` + alias + `.reply_count, ` + alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.deleted_at`
}
