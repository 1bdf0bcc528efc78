package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// FeedSort selects the ranking function for the feed.
type FeedSort string

// Feed sorts.
const (
	SortHot           FeedSort = "hot"
	SortNew           FeedSort = "new"
	SortTop           FeedSort = "top"
	SortRising        FeedSort = "rising"
	SortControversial FeedSort = "controversial"
)

// risingWindow bounds the candidate set for the rising sort.
const risingWindow = 24 * time.Hour

// FeedService ranks non-deleted posts. Every sort pages with an opaque
// keyset cursor so a page is consistent within its own snapshot.
type FeedService struct {
	pool *pgxpool.Pool
}

// NewFeedService creates a new feed service.
func NewFeedService(pool *pgxpool.Pool) *FeedService {
	if pool == nil {
		panic("pool is required")
	}
	return &FeedService{pool: pool}
}

// FeedCursor is the keyset position of the last row of a page. Rank carries
// the sort-specific value (score for top/hot, vote_count for rising and
// controversial, unused for new).
type FeedCursor struct {
	Rank      int
	CreatedAt time.Time
	ID        uuid.UUID
}

// EncodeFeedCursor renders a cursor as an opaque base64 token.
func EncodeFeedCursor(c FeedCursor) string {
	raw := fmt.Sprintf("%d|%s|%s", c.Rank, c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeFeedCursor parses a token produced by EncodeFeedCursor.
func DecodeFeedCursor(token string) (*FeedCursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, NewValidationError("cursor", "malformed cursor")
	}
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 {
		return nil, NewValidationError("cursor", "malformed cursor")
	}
	rank, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, NewValidationError("cursor", "malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, NewValidationError("cursor", "malformed cursor")
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, NewValidationError("cursor", "malformed cursor")
	}
	return &FeedCursor{Rank: rank, CreatedAt: ts, ID: id}, nil
}

// FeedPage is one page of ranked posts.
type FeedPage struct {
	Posts   []*models.Post
	Cursor  string
	HasMore bool
}

// Feed returns one ranked page. Unknown sorts are a validation error; a bad
// cursor token likewise.
func (s *FeedService) Feed(ctx context.Context, sort FeedSort, limit int, cursorToken string) (*FeedPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var cursor *FeedCursor
	if cursorToken != "" {
		var err error
		cursor, err = DecodeFeedCursor(cursorToken)
		if err != nil {
			return nil, err
		}
	}

	var (
		query string
		args  []any
	)
	switch sort {
	case SortNew:
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE deleted_at IS NULL
			  AND ($1::timestamptz IS NULL OR (created_at, id) < ($1, $2::uuid))
			ORDER BY created_at DESC, id DESC
			LIMIT $3`
		args = []any{cursorTime(cursor), cursorID(cursor), limit + 1}

	case SortTop, SortHot:
		// Same ordering tuple for both today; hot additionally rides the
		// partial composite index.
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE deleted_at IS NULL
			  AND ($1::int IS NULL OR (score, created_at, id) < ($1, $2::timestamptz, $3::uuid))
			ORDER BY score DESC, created_at DESC, id DESC
			LIMIT $4`
		args = []any{cursorRank(cursor), cursorTime(cursor), cursorID(cursor), limit + 1}

	case SortRising:
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE deleted_at IS NULL
			  AND created_at > now() - $1::interval
			  AND ($2::int IS NULL OR (vote_count, created_at, id) < ($2, $3::timestamptz, $4::uuid))
			ORDER BY vote_count DESC, created_at DESC, id DESC
			LIMIT $5`
		args = []any{risingWindow.String(), cursorRank(cursor), cursorTime(cursor), cursorID(cursor), limit + 1}

	case SortControversial:
		// Controversial means heavily voted but near-balanced:
		// |score| / vote_count <= 0.2, in integer arithmetic.
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE deleted_at IS NULL
			  AND vote_count > 0
			  AND abs(score) * 5 <= vote_count
			  AND ($1::int IS NULL OR (vote_count, created_at, id) < ($1, $2::timestamptz, $3::uuid))
			ORDER BY vote_count DESC, created_at DESC, id DESC
			LIMIT $4`
		args = []any{cursorRank(cursor), cursorTime(cursor), cursorID(cursor), limit + 1}

	default:
		return nil, NewValidationError("sort", "must be one of hot, new, top, rising, controversial")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s feed: %w", sort, err)
	}
	defer rows.Close()

	posts := make([]*models.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning feed row: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying %s feed: %w", sort, err)
	}

	page := &FeedPage{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		page.HasMore = true
		last := page.Posts[len(page.Posts)-1]
		rank := last.Score
		if sort == SortRising || sort == SortControversial {
			rank = last.VoteCount
		}
		page.Cursor = EncodeFeedCursor(FeedCursor{Rank: rank, CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func cursorTime(c *FeedCursor) *time.Time {
	if c == nil {
		return nil
	}
	return &c.CreatedAt
}

func cursorID(c *FeedCursor) *uuid.UUID {
	if c == nil {
		return nil
	}
	return &c.ID
}

func cursorRank(c *FeedCursor) *int {
	if c == nil {
		return nil
	}
	return &c.Rank
}
