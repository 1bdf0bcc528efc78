package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// VoteService applies idempotent (user, target) votes. All score and
// vote_count arithmetic happens in the vote triggers; this service only
// upserts and deletes vote rows.
type VoteService struct {
	pool *pgxpool.Pool
}

// NewVoteService creates a new vote service.
func NewVoteService(pool *pgxpool.Pool) *VoteService {
	if pool == nil {
		panic("pool is required")
	}
	return &VoteService{pool: pool}
}

// serializationFailure is the PostgreSQL SQLSTATE for serialization errors.
const serializationFailure = "40001"

// Vote upserts a +1/-1 vote. Re-casting the same value is a no-op; flipping
// direction updates the row (score delta ±2, count unchanged). Retries once
// on serialization failure.
func (s *VoteService) Vote(ctx context.Context, userID string, targetType models.ContentType, targetID uuid.UUID, value int) (*models.Vote, error) {
	if value != 1 && value != -1 {
		return nil, NewValidationError("value", "must be 1 or -1")
	}
	if targetType != models.ContentTypePost && targetType != models.ContentTypeReply {
		return nil, NewValidationError("target_type", "must be post or reply")
	}

	if err := s.checkTarget(ctx, targetType, targetID); err != nil {
		return nil, err
	}

	vote, err := s.upsert(ctx, userID, targetType, targetID, value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			vote, err = s.upsert(ctx, userID, targetType, targetID, value)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("casting vote: %w", err)
	}
	return vote, nil
}

func (s *VoteService) upsert(ctx context.Context, userID string, targetType models.ContentType, targetID uuid.UUID, value int) (*models.Vote, error) {
	// The WHERE clause makes a same-value re-cast a true no-op: the update
	// trigger never fires, so score and vote_count are untouched.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO votes (user_id, target_type, target_id, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, target_type, target_id)
		DO UPDATE SET value = EXCLUDED.value
		WHERE votes.value <> EXCLUDED.value
		RETURNING id, user_id, target_type, target_id, value, created_at, updated_at`,
		userID, targetType, targetID, value)

	vote, err := scanVote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Same-value no-op: fetch the existing row.
		row = s.pool.QueryRow(ctx, `
			SELECT id, user_id, target_type, target_id, value, created_at, updated_at
			FROM votes
			WHERE user_id = $1 AND target_type = $2 AND target_id = $3`,
			userID, targetType, targetID)
		vote, err = scanVote(row)
	}
	return vote, err
}

// Unvote removes the caller's vote; the delete trigger reverses its effects.
func (s *VoteService) Unvote(ctx context.Context, userID string, targetType models.ContentType, targetID uuid.UUID) error {
	if targetType != models.ContentTypePost && targetType != models.ContentTypeReply {
		return NewValidationError("target_type", "must be post or reply")
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM votes WHERE user_id = $1 AND target_type = $2 AND target_id = $3`,
		userID, targetType, targetID)
	if err != nil {
		return fmt.Errorf("removing vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// checkTarget verifies the vote target exists and is not soft-deleted.
func (s *VoteService) checkTarget(ctx context.Context, targetType models.ContentType, targetID uuid.UUID) error {
	table := "posts"
	if targetType == models.ContentTypeReply {
		table = "replies"
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND deleted_at IS NULL)`,
		targetID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking vote target: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func scanVote(row rowScanner) (*models.Vote, error) {
	var v models.Vote
	err := row.Scan(&v.ID, &v.UserID, &v.TargetType, &v.TargetID, &v.Value, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
