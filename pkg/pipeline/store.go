// Package pipeline orchestrates multi-stage batch analysis: each stage
// submits one external batch job, checkpoints the job name before awaiting
// results, and persists parsed results to object storage so a restart never
// repeats finished work.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// Store persists pipeline runs and their per-stage checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a pipeline store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pool is required")
	}
	return &Store{pool: pool}
}

// CreateRun inserts a new running pipeline run.
func (s *Store) CreateRun(ctx context.Context, id string, sourceType models.ContentType, textCount int) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pipeline_runs (id, status, source_type, text_count)
		VALUES ($1, 'running', $2, $3)
		RETURNING id, status, source_type, text_count, error_message, created_at, updated_at`,
		id, sourceType, textCount).
		Scan(&run.ID, &run.Status, &run.SourceType, &run.TextCount,
			&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline run: %w", err)
	}
	return &run, nil
}

// RunningRuns returns every run still marked running, oldest first.
func (s *Store) RunningRuns(ctx context.Context) ([]*models.PipelineRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, source_type, text_count, error_message, created_at, updated_at
		FROM pipeline_runs
		WHERE status = 'running'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing running pipelines: %w", err)
	}
	defer rows.Close()

	var runs []*models.PipelineRun
	for rows.Next() {
		var run models.PipelineRun
		err := rows.Scan(&run.ID, &run.Status, &run.SourceType, &run.TextCount,
			&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning pipeline run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing running pipelines: %w", err)
	}
	return runs, nil
}

// FinishRun moves a run to completed or failed. Partial checkpoints are
// retained either way.
func (s *Store) FinishRun(ctx context.Context, id string, status models.PipelineStatus, errorMessage *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = 'running'`,
		id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("finishing pipeline run: %w", err)
	}
	return nil
}

// Checkpoint returns the checkpoint for one stage of a run, or nil if the
// stage was never started.
func (s *Store) Checkpoint(ctx context.Context, runID, stage string) (*models.PipelineCheckpoint, error) {
	var cp models.PipelineCheckpoint
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, stage, gemini_job_name, request_count, gcs_path, completed, created_at, updated_at
		FROM pipeline_checkpoints
		WHERE run_id = $1 AND stage = $2`, runID, stage).
		Scan(&cp.ID, &cp.RunID, &cp.Stage, &cp.GeminiJobName, &cp.RequestCount,
			&cp.GCSPath, &cp.Completed, &cp.CreatedAt, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching checkpoint: %w", err)
	}
	return &cp, nil
}

// RecordSubmission checkpoints a freshly submitted job before results are
// awaited. This write is what makes a crash between submit and poll safe.
func (s *Store) RecordSubmission(ctx context.Context, runID, stage, jobName string, requestCount int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_checkpoints (id, run_id, stage, gemini_job_name, request_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, stage)
		DO UPDATE SET gemini_job_name = EXCLUDED.gemini_job_name,
		              request_count = EXCLUDED.request_count,
		              updated_at = now()`,
		uuid.New(), runID, stage, jobName, requestCount)
	if err != nil {
		return fmt.Errorf("recording stage submission: %w", err)
	}
	return nil
}

// CompleteStage marks a stage done and records where its parsed results
// live.
func (s *Store) CompleteStage(ctx context.Context, runID, stage, gcsPath string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_checkpoints
		SET completed = true, gcs_path = $3, updated_at = now()
		WHERE run_id = $1 AND stage = $2`,
		runID, stage, gcsPath)
	if err != nil {
		return fmt.Errorf("completing stage checkpoint: %w", err)
	}
	return nil
}
