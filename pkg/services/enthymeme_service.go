package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// EnthymemeService materializes reconstructed missing premises as
// system-authored replies, so implicit assumptions become first-class
// discussion targets.
type EnthymemeService struct {
	pool    *pgxpool.Pool
	content *ContentService
	logger  *slog.Logger
}

// NewEnthymemeService creates a new enthymeme service.
func NewEnthymemeService(pool *pgxpool.Pool, content *ContentService) *EnthymemeService {
	if pool == nil {
		panic("pool is required")
	}
	if content == nil {
		panic("content is required")
	}
	return &EnthymemeService{
		pool:    pool,
		content: content,
		logger:  slog.Default().With("component", "enthymeme_backfill"),
	}
}

// Backfill inserts one reply per pending enthymeme, authored by the system
// account, threaded under the content the enthymeme came from. Processed
// enthymemes are marked accepted; a failed insert leaves the enthymeme
// pending for the next pass.
func (s *EnthymemeService) Backfill(ctx context.Context, systemUser *models.User) (int, error) {
	if !systemUser.IsSystem {
		return 0, ErrForbidden
	}

	rows, err := s.pool.Query(ctx, `
		SELECT en.id, en.content, ar.source_type, ar.source_id
		FROM enthymemes en
		JOIN snodes sn ON sn.id = en.snode_id
		JOIN analysis_runs ar ON ar.id = sn.analysis_run_id
		WHERE en.status = 'pending'
		ORDER BY en.created_at`)
	if err != nil {
		return 0, fmt.Errorf("listing pending enthymemes: %w", err)
	}
	type pending struct {
		id         uuid.UUID
		content    string
		sourceType models.ContentType
		sourceID   uuid.UUID
	}
	var work []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content, &p.sourceType, &p.sourceID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning pending enthymeme: %w", err)
		}
		work = append(work, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("listing pending enthymemes: %w", err)
	}

	backfilled := 0
	for _, p := range work {
		if err := s.backfillOne(ctx, systemUser, p.id, p.content, p.sourceType, p.sourceID); err != nil {
			s.logger.Error("Failed to backfill enthymeme", "enthymeme_id", p.id, "error", err)
			continue
		}
		backfilled++
	}
	return backfilled, nil
}

// backfillOne threads a reconstructed premise under its source. A post source
// gets a root-level reply; a reply source becomes the parent, so the path and
// reply counters extend exactly as a human reply would.
func (s *EnthymemeService) backfillOne(ctx context.Context, systemUser *models.User, enthymemeID uuid.UUID, content string, sourceType models.ContentType, sourceID uuid.UUID) error {
	input := CreateReplyInput{
		AuthorID: systemUser.ID,
		Content:  "Implicit premise: " + content,
	}
	switch sourceType {
	case models.ContentTypePost:
		input.PostID = sourceID
	case models.ContentTypeReply:
		parent, err := s.content.GetReply(ctx, sourceID)
		if err != nil {
			return err
		}
		input.PostID = parent.PostID
		input.ParentReplyID = &parent.ID
	default:
		return NewValidationError("source_type", "must be post or reply")
	}

	reply, err := s.content.CreateReply(ctx, input)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE enthymemes SET status = 'accepted', updated_at = now() WHERE id = $1`,
		enthymemeID)
	if err != nil {
		return fmt.Errorf("accepting enthymeme after reply %s: %w", reply.ID, err)
	}
	return nil
}
