package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// contentAuthor resolves the author of a post or reply, deleted or not.
// Gamification events still reach authors of tombstoned content.
func contentAuthor(ctx context.Context, pool *pgxpool.Pool, contentType models.ContentType, contentID uuid.UUID) (string, error) {
	table := "posts"
	if contentType == models.ContentTypeReply {
		table = "replies"
	}
	var authorID string
	err := pool.QueryRow(ctx,
		`SELECT author_id FROM `+table+` WHERE id = $1`, contentID).Scan(&authorID)
	if isNoRows(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving content author: %w", err)
	}
	return authorID, nil
}
