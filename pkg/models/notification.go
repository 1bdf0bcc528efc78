package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationCategory partitions the unified notification table.
type NotificationCategory string

// Notification categories.
const (
	NotificationSocial    NotificationCategory = "SOCIAL"
	NotificationEpistemic NotificationCategory = "EPISTEMIC"
)

// EpistemicEventType enumerates gamification events delivered as
// EPISTEMIC notifications.
type EpistemicEventType string

// Epistemic event types.
const (
	EpistemicStreamHalted     EpistemicEventType = "STREAM_HALTED"
	EpistemicBountyStolen     EpistemicEventType = "BOUNTY_STOLEN"
	EpistemicBountyPaid       EpistemicEventType = "BOUNTY_PAID"
	EpistemicBountyLanguished EpistemicEventType = "BOUNTY_LANGUISHED"
	EpistemicUpstreamDefeated EpistemicEventType = "UPSTREAM_DEFEATED"
)

// Notification is one inbox row. SOCIAL rows coalesce replies on the same
// target (reply_count, last_reply_author_id); EPISTEMIC rows carry a typed
// event and an opaque JSON payload.
type Notification struct {
	ID                uuid.UUID            `json:"id"`
	UserID            string               `json:"user_id"`
	Category          NotificationCategory `json:"category"`
	TargetType        string               `json:"target_type"`
	TargetID          uuid.UUID            `json:"target_id"`
	ReplyCount        int                  `json:"reply_count"`
	LastReplyAuthorID *string              `json:"last_reply_author_id,omitempty"`
	EpistemicType     *EpistemicEventType  `json:"epistemic_type,omitempty"`
	Payload           json.RawMessage      `json:"payload,omitempty"`
	IsRead            bool                 `json:"is_read"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}
