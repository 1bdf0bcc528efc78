package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineStatus is the batch pipeline run state machine.
type PipelineStatus string

// Pipeline statuses.
const (
	PipelineRunning   PipelineStatus = "running"
	PipelineCompleted PipelineStatus = "completed"
	PipelineFailed    PipelineStatus = "failed"
)

// PipelineRun tracks one multi-stage batch analysis over many texts.
type PipelineRun struct {
	ID           string         `json:"id"`
	Status       PipelineStatus `json:"status"`
	SourceType   ContentType    `json:"source_type"`
	TextCount    int            `json:"text_count"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// PipelineCheckpoint is the per-stage resume record: the external job name is
// persisted before results are awaited, and the parsed result blob path once
// the stage completes.
type PipelineCheckpoint struct {
	ID            uuid.UUID `json:"id"`
	RunID         string    `json:"run_id"`
	Stage         string    `json:"stage"`
	GeminiJobName *string   `json:"gemini_job_name,omitempty"`
	RequestCount  int       `json:"request_count"`
	GCSPath       *string   `json:"gcs_path,omitempty"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
