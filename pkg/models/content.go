package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType identifies the kind of a piece of user content.
type ContentType string

// Content types.
const (
	ContentTypePost  ContentType = "post"
	ContentTypeReply ContentType = "reply"
)

// Content length limits.
const (
	MaxTitleLength        = 300
	MaxPostContentLength  = 40000
	MaxReplyContentLength = 10000
	MaxQuotedTextLength   = 2000
)

// Post is a top-level submission. Content is append-only aside from
// soft-delete; counter columns are maintained by database triggers.
type Post struct {
	ID                  uuid.UUID  `json:"id"`
	AuthorID            string     `json:"author_id"`
	Title               string     `json:"title"`
	Content             string     `json:"content"`
	AnalysisContentHash string     `json:"analysis_content_hash,omitempty"`
	Score               int        `json:"score"`
	VoteCount           int        `json:"vote_count"`
	ReplyCount          int        `json:"reply_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// Reply is a threaded response to a post or another reply. Path is the
// materialized ancestor chain of hyphen-stripped uuid labels; depth is
// 0-based and always equals len(path)-1.
type Reply struct {
	ID                  uuid.UUID    `json:"id"`
	PostID              uuid.UUID    `json:"post_id"`
	ParentReplyID       *uuid.UUID   `json:"parent_reply_id,omitempty"`
	AuthorID            string       `json:"author_id"`
	Content             string       `json:"content"`
	AnalysisContentHash string       `json:"analysis_content_hash,omitempty"`
	Depth               int          `json:"depth"`
	Path                string       `json:"path"`
	QuotedText          *string      `json:"quoted_text,omitempty"`
	QuotedSourceType    *ContentType `json:"quoted_source_type,omitempty"`
	QuotedSourceID      *uuid.UUID   `json:"quoted_source_id,omitempty"`
	Score               int          `json:"score"`
	VoteCount           int          `json:"vote_count"`
	ReplyCount          int          `json:"reply_count"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	DeletedAt           *time.Time   `json:"deleted_at,omitempty"`
}
