package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// NotificationService writes and pages the unified inbox. SOCIAL rows
// coalesce replies per (recipient, target); EPISTEMIC rows are one per event.
// Both paths are ON CONFLICT upserts and therefore safe to retry.
type NotificationService struct {
	pool *pgxpool.Pool
}

// NewNotificationService creates a new notification service.
func NewNotificationService(pool *pgxpool.Pool) *NotificationService {
	if pool == nil {
		panic("pool is required")
	}
	return &NotificationService{pool: pool}
}

const notificationColumns = `id, user_id, category, target_type, target_id,
	reply_count, last_reply_author_id, epistemic_type, payload, is_read,
	created_at, updated_at`

// NotifyReply records that replyAuthorID replied to the given target owned by
// recipientID. Self-replies are skipped. Repeat replies coalesce into one row
// with a bumped reply_count.
func (s *NotificationService) NotifyReply(ctx context.Context, recipientID, replyAuthorID string, targetType models.ContentType, targetID uuid.UUID) error {
	if recipientID == replyAuthorID {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, category, target_type, target_id, reply_count, last_reply_author_id)
		VALUES ($1, 'SOCIAL', $2, $3, 1, $4)
		ON CONFLICT (user_id, target_type, target_id)
		DO UPDATE SET reply_count = notifications.reply_count + 1,
		              last_reply_author_id = EXCLUDED.last_reply_author_id,
		              updated_at = now()`,
		recipientID, targetType, targetID, replyAuthorID)
	if err != nil {
		return fmt.Errorf("recording reply notification: %w", err)
	}
	return nil
}

// NotifyEpistemic inserts an EPISTEMIC event for the recipient. The target is
// the graph entity the event concerns (an S-node for bounty events, an I-node
// for defeats); payload carries the event-specific fields verbatim.
func (s *NotificationService) NotifyEpistemic(ctx context.Context, recipientID string, eventType models.EpistemicEventType, targetType string, targetID uuid.UUID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding notification payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, category, target_type, target_id, epistemic_type, payload)
		VALUES ($1, 'EPISTEMIC', $2, $3, $4, $5)
		ON CONFLICT (user_id, target_type, target_id)
		DO UPDATE SET epistemic_type = EXCLUDED.epistemic_type,
		              payload = EXCLUDED.payload,
		              is_read = false,
		              updated_at = now()`,
		recipientID, targetType, targetID, eventType, raw)
	if err != nil {
		return fmt.Errorf("recording epistemic notification: %w", err)
	}
	return nil
}

// ListNotifications pages one category of the recipient's inbox by
// updated_at DESC. The cursor is the updated_at of the last row.
func (s *NotificationService) ListNotifications(ctx context.Context, userID string, category models.NotificationCategory, limit int, cursor *time.Time) ([]*models.Notification, *time.Time, bool, error) {
	if category != models.NotificationSocial && category != models.NotificationEpistemic {
		return nil, nil, false, NewValidationError("category", "must be SOCIAL or EPISTEMIC")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND category = $2
		  AND ($3::timestamptz IS NULL OR updated_at < $3)
		ORDER BY updated_at DESC
		LIMIT $4`,
		userID, category, cursor, limit+1)
	if err != nil {
		return nil, nil, false, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Notification, 0, limit)
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.TargetType, &n.TargetID,
			&n.ReplyCount, &n.LastReplyAuthorID, &n.EpistemicType, &n.Payload,
			&n.IsRead, &n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			return nil, nil, false, fmt.Errorf("scanning notification: %w", err)
		}
		items = append(items, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("listing notifications: %w", err)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	var next *time.Time
	if hasMore {
		ts := items[len(items)-1].UpdatedAt
		next = &ts
	}
	return items, next, hasMore, nil
}

// MarkViewed advances the recipient's SOCIAL read watermark to now. SOCIAL
// rows have no per-row read bit; anything updated before the watermark reads
// as seen.
func (s *NotificationService) MarkViewed(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET notifications_last_viewed_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("marking notifications viewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead flags specific EPISTEMIC rows as read. Ids belonging to other
// users are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE user_id = $1 AND category = 'EPISTEMIC' AND id = ANY($2)`,
		userID, ids)
	if err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}
