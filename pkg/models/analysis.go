package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the analysis run state machine: pending → processing →
// {completed, failed}. Terminal states never transition.
type RunStatus string

// Run statuses.
const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// AnalysisRun is one analysis attempt over one piece of content, uniquely
// keyed by (source, content_hash) while non-terminal.
type AnalysisRun struct {
	ID           uuid.UUID   `json:"id"`
	SourceType   ContentType `json:"source_type"`
	SourceID     uuid.UUID   `json:"source_id"`
	ContentHash  string      `json:"content_hash"`
	Status       RunStatus   `json:"status"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
