package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// EpistemicType classifies an I-node's claim: fact, value, or policy.
type EpistemicType string

// Epistemic types.
const (
	EpistemicFact   EpistemicType = "FACT"
	EpistemicValue  EpistemicType = "VALUE"
	EpistemicPolicy EpistemicType = "POLICY"
)

// FactSubtype refines FACT I-nodes for evidence weighting.
type FactSubtype string

// Fact subtypes.
const (
	FactEnthymeme   FactSubtype = "ENTHYMEME"
	FactAnecdote    FactSubtype = "ANECDOTE"
	FactDocumentRef FactSubtype = "DOCUMENT_REF"
	FactAcademicRef FactSubtype = "ACADEMIC_REF"
)

// NodeRole reflects an I-node's outgoing relationship: SUPPORT or ATTACK if
// it is a premise of a scheme with that direction, ROOT otherwise.
type NodeRole string

// Node roles.
const (
	RoleRoot    NodeRole = "ROOT"
	RoleSupport NodeRole = "SUPPORT"
	RoleAttack  NodeRole = "ATTACK"
)

// INode is an information node in the V3 hypergraph.
type INode struct {
	ID                   uuid.UUID        `json:"id"`
	AnalysisRunID        uuid.UUID        `json:"analysis_run_id"`
	SourceType           ContentType      `json:"source_type"`
	SourceID             uuid.UUID        `json:"source_id"`
	Content              string           `json:"content"`
	RewrittenContent     *string          `json:"rewritten_content,omitempty"`
	EpistemicType        EpistemicType    `json:"epistemic_type"`
	SpanStart            int              `json:"span_start"`
	SpanEnd              int              `json:"span_end"`
	FVPConfidence        float64          `json:"fvp_confidence"`
	ExtractionConfidence float64          `json:"extraction_confidence"`
	Embedding            *pgvector.Vector `json:"-"`
	FactSubtype          *FactSubtype     `json:"fact_subtype,omitempty"`
	BaseWeight           float64          `json:"base_weight"`
	EvidenceRank         float64          `json:"evidence_rank"`
	IsDefeated           bool             `json:"is_defeated"`
	ComponentID          *uuid.UUID       `json:"component_id,omitempty"`
	NodeRole             NodeRole         `json:"node_role"`
	SourceRefID          *uuid.UUID       `json:"source_ref_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// SchemeDirection is the argumentative direction of an S-node.
type SchemeDirection string

// Scheme directions.
const (
	DirectionSupport SchemeDirection = "SUPPORT"
	DirectionAttack  SchemeDirection = "ATTACK"
)

// EscrowStatus is the bounty lifecycle on a bridge S-node:
// none → active → {paid, stolen, languished}.
type EscrowStatus string

// Escrow statuses.
const (
	EscrowNone       EscrowStatus = "none"
	EscrowActive     EscrowStatus = "active"
	EscrowPaid       EscrowStatus = "paid"
	EscrowStolen     EscrowStatus = "stolen"
	EscrowLanguished EscrowStatus = "languished"
)

// SNode is a scheme node: the logic hub connecting premises, a conclusion,
// and optional motivations.
type SNode struct {
	ID                 uuid.UUID       `json:"id"`
	AnalysisRunID      uuid.UUID       `json:"analysis_run_id"`
	Direction          SchemeDirection `json:"direction"`
	LogicType          *string         `json:"logic_type,omitempty"`
	Confidence         float64         `json:"confidence"`
	GapDetected        bool            `json:"gap_detected"`
	FallacyType        *string         `json:"fallacy_type,omitempty"`
	FallacyExplanation *string         `json:"fallacy_explanation,omitempty"`
	EscrowStatus       EscrowStatus    `json:"escrow_status"`
	EscrowExpiresAt    *time.Time      `json:"escrow_expires_at,omitempty"`
	PendingBounty      float64         `json:"pending_bounty"`
	IsBridge           bool            `json:"is_bridge"`
	ComponentAID       *uuid.UUID      `json:"component_a_id,omitempty"`
	ComponentBID       *uuid.UUID      `json:"component_b_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// EdgeRole is the role a node plays in a scheme.
type EdgeRole string

// Edge roles.
const (
	RolePremise    EdgeRole = "premise"
	RoleConclusion EdgeRole = "conclusion"
	RoleMotivation EdgeRole = "motivation"
)

// Edge connects a scheme node to an I-node or, for premises only, a source.
type Edge struct {
	ID          uuid.UUID  `json:"id"`
	SNodeID     uuid.UUID  `json:"snode_id"`
	INodeID     *uuid.UUID `json:"inode_id,omitempty"`
	SourceRefID *uuid.UUID `json:"source_ref_id,omitempty"`
	Role        EdgeRole   `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EnthymemeStatus tracks review of a reconstructed missing premise.
type EnthymemeStatus string

// Enthymeme statuses.
const (
	EnthymemePending  EnthymemeStatus = "pending"
	EnthymemeAccepted EnthymemeStatus = "accepted"
	EnthymemeRejected EnthymemeStatus = "rejected"
)

// Enthymeme is a missing premise implicitly required by a scheme.
type Enthymeme struct {
	ID          uuid.UUID       `json:"id"`
	SNodeID     uuid.UUID       `json:"snode_id"`
	Content     string          `json:"content"`
	FVPType     EpistemicType   `json:"fvp_type"`
	Probability float64         `json:"probability"`
	Status      EnthymemeStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SocraticQuestion is an optional probing question attached to a scheme.
type SocraticQuestion struct {
	ID                uuid.UUID  `json:"id"`
	SNodeID           uuid.UUID  `json:"snode_id"`
	Question          string     `json:"question"`
	Uncertainty       float64    `json:"uncertainty"`
	ResolutionReplyID *uuid.UUID `json:"resolution_reply_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ExtractedValue names a value appealed to by a VALUE I-node.
type ExtractedValue struct {
	ID        uuid.UUID `json:"id"`
	INodeID   uuid.UUID `json:"inode_id"`
	ValueName string    `json:"value_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ConceptNode is a globally deduplicated (term, definition) pair.
type ConceptNode struct {
	ID         uuid.UUID        `json:"id"`
	Term       string           `json:"term"`
	Definition string           `json:"definition"`
	Embedding  *pgvector.Vector `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
}

// INodeConcept maps a term occurrence in an I-node to a concept.
type INodeConcept struct {
	ID        uuid.UUID `json:"id"`
	INodeID   uuid.UUID `json:"inode_id"`
	ConceptID uuid.UUID `json:"concept_id"`
	Term      string    `json:"term"`
	CreatedAt time.Time `json:"created_at"`
}

// EquivocationFlag records that the same term denotes two different concepts
// across a premise/conclusion edge of one scheme. Unique per (scheme, term).
type EquivocationFlag struct {
	ID                  uuid.UUID `json:"id"`
	SNodeID             uuid.UUID `json:"snode_id"`
	Term                string    `json:"term"`
	PremiseConceptID    uuid.UUID `json:"premise_concept_id"`
	ConclusionConceptID uuid.UUID `json:"conclusion_concept_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// SourceLevel is the hierarchy level of an R-node.
type SourceLevel string

// Source levels.
const (
	SourceDomain   SourceLevel = "DOMAIN"
	SourceDocument SourceLevel = "DOCUMENT"
	SourceExtract  SourceLevel = "EXTRACT"
)

// Source is an R-node: a hierarchical external reference with a reputation.
type Source struct {
	ID         uuid.UUID        `json:"id"`
	Level      SourceLevel      `json:"level"`
	ParentID   *uuid.UUID       `json:"parent_id,omitempty"`
	URL        *string          `json:"url,omitempty"`
	Title      *string          `json:"title,omitempty"`
	Reputation float64          `json:"reputation"`
	Embedding  *pgvector.Vector `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
