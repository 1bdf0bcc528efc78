// Package queue runs the analysis worker pool: workers claim pending
// analysis runs, call the discourse engine, and commit the resulting graph.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/agora-discourse/agora/pkg/models"
)

// Sentinel errors used by the worker poll loop.
var (
	// ErrNoRunsAvailable indicates no pending analysis runs to claim.
	ErrNoRunsAvailable = errors.New("no pending analysis runs available")
)

// RunExecutor performs the analysis for one claimed run and moves it to a
// terminal state.
type RunExecutor interface {
	Execute(ctx context.Context, run *models.AnalysisRun) error
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentRunID  string       `json:"current_run_id,omitempty"`
	RunsProcessed int          `json:"runs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth is the pool's aggregate health snapshot.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
	LastSweep     time.Time      `json:"last_sweep"`
	SweptRuns     int            `json:"swept_runs"`
}
