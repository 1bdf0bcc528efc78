package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a user's +1/-1 on a post or reply, unique per (user, target).
// Score and vote_count deltas on the target are applied by database triggers.
type Vote struct {
	ID         uuid.UUID   `json:"id"`
	UserID     string      `json:"user_id"`
	TargetType ContentType `json:"target_type"`
	TargetID   uuid.UUID   `json:"target_id"`
	Value      int         `json:"value"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Follow is a (follower, following) edge with denormalized counts on both
// user rows.
type Follow struct {
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}
