package models

import (
	"time"

	"github.com/google/uuid"
)

// ADUType is the legacy V2 unit type.
type ADUType string

// ADU types.
const (
	ADUClaim   ADUType = "claim"
	ADUPremise ADUType = "premise"
)

// ADU is a legacy V2 Argument Discourse Unit, superseded by I-nodes but still
// served read-only by the arguments API.
type ADU struct {
	ID               uuid.UUID   `json:"id"`
	SourceType       ContentType `json:"source_type"`
	SourceID         uuid.UUID   `json:"source_id"`
	ADUType          ADUType     `json:"adu_type"`
	Content          string      `json:"content"`
	SpanStart        int         `json:"span_start"`
	SpanEnd          int         `json:"span_end"`
	Confidence       float64     `json:"confidence"`
	CanonicalClaimID *uuid.UUID  `json:"canonical_claim_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// CanonicalClaim deduplicates equivalent claims across posts; claim_count is
// trigger-maintained.
type CanonicalClaim struct {
	ID         uuid.UUID `json:"id"`
	AuthorID   *string   `json:"author_id,omitempty"`
	Text       string    `json:"text"`
	ClaimCount int       `json:"claim_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ADURelation is a legacy support/attack relation between two ADUs.
type ADURelation struct {
	ID           uuid.UUID `json:"id"`
	FromADUID    uuid.UUID `json:"from_adu_id"`
	ToADUID      uuid.UUID `json:"to_adu_id"`
	RelationType string    `json:"relation_type"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// RelatedPost pairs a post with its embedding similarity to a canonical claim.
type RelatedPost struct {
	Post       *Post   `json:"post"`
	Similarity float64 `json:"similarity"`
}
