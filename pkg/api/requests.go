package api

import "github.com/google/uuid"

// CreatePostRequest is the body of POST /api/v1/posts.
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateReplyRequest is the body of POST /api/v1/posts/:id/replies. The three
// quote fields are all-or-none.
type CreateReplyRequest struct {
	Content          string     `json:"content"`
	ParentReplyID    *uuid.UUID `json:"parent_reply_id,omitempty"`
	QuotedText       string     `json:"quoted_text,omitempty"`
	QuotedSourceType string     `json:"quoted_source_type,omitempty"`
	QuotedSourceID   *uuid.UUID `json:"quoted_source_id,omitempty"`
}

// VoteRequest is the body of POST /api/v1/votes and DELETE /api/v1/votes.
type VoteRequest struct {
	TargetType string    `json:"target_type"`
	TargetID   uuid.UUID `json:"target_id"`
	Value      int       `json:"value"`
}

// MarkReadRequest is the body of POST /api/v1/notifications/read. With IDs it
// marks the given epistemic notifications read; without, it stamps the social
// inbox as viewed.
type MarkReadRequest struct {
	IDs []uuid.UUID `json:"ids,omitempty"`
}

// ServiceTokenRequest is the body of POST /api/v1/auth/service.
type ServiceTokenRequest struct {
	IdentityToken string `json:"identity_token"`
}

// BlockIPRequest is the body of POST /internal/block-ip.
type BlockIPRequest struct {
	IP         string `json:"ip"`
	TTLSeconds *int   `json:"ttlSeconds,omitempty"`
}
