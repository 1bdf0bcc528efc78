package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// FollowService manages the follow graph. The followers_count and
// following_count columns on users are maintained by triggers.
type FollowService struct {
	pool *pgxpool.Pool
}

// NewFollowService creates a new follow service.
func NewFollowService(pool *pgxpool.Pool) *FollowService {
	if pool == nil {
		panic("pool is required")
	}
	return &FollowService{pool: pool}
}

// Follow creates the (follower, following) edge. Repeat calls are no-ops and
// do not disturb the counters.
func (s *FollowService) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return NewValidationError("following_id", "cannot follow yourself")
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`,
		followingID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking followed user: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO follows (follower_id, following_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, following_id) DO NOTHING`,
		followerID, followingID)
	if err != nil {
		return fmt.Errorf("creating follow: %w", err)
	}
	return nil
}

// Unfollow removes the edge; missing edges return ErrNotFound.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followingID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`,
		followerID, followingID)
	if err != nil {
		return fmt.Errorf("removing follow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFollowers pages the users following userID by edge created_at DESC.
// The returned cursor is the created_at of the last edge on the page.
func (s *FollowService) ListFollowers(ctx context.Context, userID string, limit int, cursor *time.Time) ([]*models.User, *time.Time, bool, error) {
	return s.listEdge(ctx, userID, limit, cursor, "follower_id", "following_id")
}

// ListFollowing pages the users userID follows by edge created_at DESC.
func (s *FollowService) ListFollowing(ctx context.Context, userID string, limit int, cursor *time.Time) ([]*models.User, *time.Time, bool, error) {
	return s.listEdge(ctx, userID, limit, cursor, "following_id", "follower_id")
}

func (s *FollowService) listEdge(ctx context.Context, userID string, limit int, cursor *time.Time, selectCol, whereCol string) ([]*models.User, *time.Time, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixedUserColumns("u")+`, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.`+selectCol+`
		WHERE f.`+whereCol+` = $1
		  AND u.deleted_at IS NULL
		  AND ($2::timestamptz IS NULL OR f.created_at < $2)
		ORDER BY f.created_at DESC
		LIMIT $3`,
		userID, cursor, limit+1)
	if err != nil {
		return nil, nil, false, fmt.Errorf("listing follows: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, limit)
	edgeTimes := make([]time.Time, 0, limit)
	for rows.Next() {
		var u models.User
		var edgeAt time.Time
		err := rows.Scan(&u.ID, &u.Email, &u.Kind, &u.DisplayName, &u.IsSystem,
			&u.FollowersCount, &u.FollowingCount, &u.VoteKarma,
			&u.PioneerKarma, &u.BuilderKarma, &u.CriticKarma, &u.EpistemicScore,
			&u.NotificationsLastViewedAt, &u.CreatedAt, &u.UpdatedAt, &edgeAt)
		if err != nil {
			return nil, nil, false, fmt.Errorf("scanning follow row: %w", err)
		}
		users = append(users, &u)
		edgeTimes = append(edgeTimes, edgeAt)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("listing follows: %w", err)
	}

	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
		edgeTimes = edgeTimes[:limit]
	}
	var next *time.Time
	if hasMore {
		last := edgeTimes[len(edgeTimes)-1]
		next = &last
	}
	return users, next, hasMore, nil
}
