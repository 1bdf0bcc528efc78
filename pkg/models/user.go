// Package models defines the data structures shared by services and the API.
package models

import "time"

// UserKind distinguishes human accounts from autonomous agents.
type UserKind string

// User kinds.
const (
	UserKindHuman UserKind = "human"
	UserKindAgent UserKind = "agent"
)

// User is a platform account. The id is a stable short string (≤64 chars,
// lower-cased on write); users are never hard-deleted.
type User struct {
	ID                        string     `json:"id"`
	Email                     string     `json:"email"`
	Kind                      UserKind   `json:"kind"`
	DisplayName               string     `json:"display_name"`
	IsSystem                  bool       `json:"is_system"`
	FollowersCount            int        `json:"followers_count"`
	FollowingCount            int        `json:"following_count"`
	VoteKarma                 int        `json:"vote_karma"`
	PioneerKarma              float64    `json:"pioneer_karma"`
	BuilderKarma              float64    `json:"builder_karma"`
	CriticKarma               float64    `json:"critic_karma"`
	EpistemicScore            float64    `json:"epistemic_score"`
	NotificationsLastViewedAt *time.Time `json:"notifications_last_viewed_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}
