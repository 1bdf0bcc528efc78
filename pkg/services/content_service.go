package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// ContentService owns posts and replies: creation, threading, quote
// provenance, and soft-delete. Counter columns (score, vote_count,
// reply_count) are read here but written only by database triggers.
type ContentService struct {
	pool *pgxpool.Pool
}

// NewContentService creates a new content service.
func NewContentService(pool *pgxpool.Pool) *ContentService {
	if pool == nil {
		panic("pool is required")
	}
	return &ContentService{pool: pool}
}

// PathLabel converts a uuid into an ltree label: hyphens become underscores.
func PathLabel(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "_")
}

// ContentHash computes the analysis content hash: sha256 over the normalized
// title and body. Identical content always hashes identically, which is what
// makes analysis runs idempotent.
func ContentHash(title, content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(title) + "\n" + strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// CreatePostInput carries validated post fields into the service.
type CreatePostInput struct {
	AuthorID string
	Title    string
	Content  string
}

const postColumns = `id, author_id, title, content, COALESCE(analysis_content_hash, ''),
	score, vote_count, reply_count, created_at, updated_at, deleted_at`

const replyColumns = `id, post_id, parent_reply_id, author_id, content,
	COALESCE(analysis_content_hash, ''), depth, path::text, quoted_text,
	quoted_source_type, quoted_source_id, score, vote_count, reply_count,
	created_at, updated_at, deleted_at`

// CreatePost validates, hashes, and inserts a new post.
func (s *ContentService) CreatePost(ctx context.Context, input CreatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(input.Title)
	if len(title) < 1 || len(title) > models.MaxTitleLength {
		return nil, NewValidationError("title", fmt.Sprintf("must be 1..%d characters", models.MaxTitleLength))
	}
	if input.Content == "" || len(input.Content) > models.MaxPostContentLength {
		return nil, NewValidationError("content", fmt.Sprintf("must be 1..%d characters", models.MaxPostContentLength))
	}

	id := uuid.New()
	hash := ContentHash(title, input.Content)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO posts (id, author_id, title, content, analysis_content_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+postColumns,
		id, input.AuthorID, title, input.Content, hash)

	post, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}
	return post, nil
}

// GetPost returns a post by id; soft-deleted posts are not found.
func (s *ContentService) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, id)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching post: %w", err)
	}
	return post, nil
}

// QuoteInput is optional quote provenance on a reply; all three fields are
// required together.
type QuoteInput struct {
	Text       string
	SourceType models.ContentType
	SourceID   uuid.UUID
}

// CreateReplyInput carries reply fields into the service.
type CreateReplyInput struct {
	AuthorID      string
	PostID        uuid.UUID
	ParentReplyID *uuid.UUID
	Content       string
	Quote         *QuoteInput
}

// CreateReply verifies the post and optional parent, derives depth and the
// materialized path, and inserts the reply. The reply-count triggers bump the
// root post and parent counters atomically with the insert.
func (s *ContentService) CreateReply(ctx context.Context, input CreateReplyInput) (*models.Reply, error) {
	if input.Content == "" || len(input.Content) > models.MaxReplyContentLength {
		return nil, NewValidationError("content", fmt.Sprintf("must be 1..%d characters", models.MaxReplyContentLength))
	}
	if input.Quote != nil {
		if input.Quote.Text == "" || len(input.Quote.Text) > models.MaxQuotedTextLength {
			return nil, NewValidationError("quoted_text", fmt.Sprintf("must be 1..%d characters", models.MaxQuotedTextLength))
		}
		if input.Quote.SourceType != models.ContentTypePost && input.Quote.SourceType != models.ContentTypeReply {
			return nil, NewValidationError("quoted_source_type", "must be post or reply")
		}
		if input.Quote.SourceID == uuid.Nil {
			return nil, NewValidationError("quoted_source_id", "is required when quoting")
		}
	}

	if _, err := s.GetPost(ctx, input.PostID); err != nil {
		return nil, err
	}

	id := uuid.New()
	depth := 0
	path := PathLabel(id)

	if input.ParentReplyID != nil {
		parent, err := s.GetReply(ctx, *input.ParentReplyID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != input.PostID {
			return nil, NewValidationError("parent_reply_id", "parent reply belongs to a different post")
		}
		depth = parent.Depth + 1
		path = parent.Path + "." + PathLabel(id)
	}

	hash := ContentHash("", input.Content)

	var quotedText, quotedType *string
	var quotedID *uuid.UUID
	if input.Quote != nil {
		quotedText = &input.Quote.Text
		st := string(input.Quote.SourceType)
		quotedType = &st
		quotedID = &input.Quote.SourceID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO replies (id, post_id, parent_reply_id, author_id, content,
			analysis_content_hash, depth, path, quoted_text, quoted_source_type, quoted_source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::ltree, $9, $10, $11)
		RETURNING `+replyColumns,
		id, input.PostID, input.ParentReplyID, input.AuthorID, input.Content,
		hash, depth, path, quotedText, quotedType, quotedID)

	reply, err := scanReply(row)
	if err != nil {
		return nil, fmt.Errorf("creating reply: %w", err)
	}
	return reply, nil
}

// GetReply returns a reply by id; soft-deleted replies are not found.
func (s *ContentService) GetReply(ctx context.Context, id uuid.UUID) (*models.Reply, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+replyColumns+` FROM replies WHERE id = $1 AND deleted_at IS NULL`, id)
	reply, err := scanReply(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching reply: %w", err)
	}
	return reply, nil
}

// ListReplies returns one page of a post's replies in path order, which reads
// as a depth-first thread. Tombstoned replies are included so threads keep
// their shape; callers blank the content client-side.
func (s *ContentService) ListReplies(ctx context.Context, postID uuid.UUID, limit int, afterPath string) ([]*models.Reply, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+replyColumns+`
		FROM replies
		WHERE post_id = $1 AND ($2 = '' OR path > $2::ltree)
		ORDER BY path
		LIMIT $3`,
		postID, afterPath, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("listing replies: %w", err)
	}
	defer rows.Close()

	replies := make([]*models.Reply, 0, limit)
	for rows.Next() {
		reply, err := scanReply(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scanning reply: %w", err)
		}
		replies = append(replies, reply)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("listing replies: %w", err)
	}

	hasMore := len(replies) > limit
	if hasMore {
		replies = replies[:limit]
	}
	return replies, hasMore, nil
}

// SoftDelete tombstones a post or reply. Only the author or a system account
// may delete; counters are deliberately left untouched.
func (s *ContentService) SoftDelete(ctx context.Context, kind models.ContentType, id uuid.UUID, actor *models.User) error {
	var authorID string
	var err error

	switch kind {
	case models.ContentTypePost:
		err = s.pool.QueryRow(ctx,
			`SELECT author_id FROM posts WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&authorID)
	case models.ContentTypeReply:
		err = s.pool.QueryRow(ctx,
			`SELECT author_id FROM replies WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&authorID)
	default:
		return NewValidationError("kind", "must be post or reply")
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("fetching author for delete: %w", err)
	}

	if actor.ID != authorID && !actor.IsSystem {
		return ErrForbidden
	}

	table := "posts"
	if kind == models.ContentTypeReply {
		table = "replies"
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE `+table+` SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting %s: %w", kind, err)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.AnalysisContentHash,
		&p.Score, &p.VoteCount, &p.ReplyCount, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanReply(row rowScanner) (*models.Reply, error) {
	var r models.Reply
	var quotedType *string
	err := row.Scan(&r.ID, &r.PostID, &r.ParentReplyID, &r.AuthorID, &r.Content,
		&r.AnalysisContentHash, &r.Depth, &r.Path, &r.QuotedText, &quotedType,
		&r.QuotedSourceID, &r.Score, &r.VoteCount, &r.ReplyCount,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	if err != nil {
		return nil, err
	}
	if quotedType != nil {
		ct := models.ContentType(*quotedType)
		r.QuotedSourceType = &ct
	}
	return &r, nil
}
