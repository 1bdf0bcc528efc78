package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// AnalysisService tracks analysis runs through the pending → processing →
// {completed, failed} state machine. The partial unique index on open runs is
// what makes OpenRun race-safe: at most one non-terminal run exists per
// (source, content hash).
type AnalysisService struct {
	pool *pgxpool.Pool
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(pool *pgxpool.Pool) *AnalysisService {
	if pool == nil {
		panic("pool is required")
	}
	return &AnalysisService{pool: pool}
}

const runColumns = `id, source_type, source_id, content_hash, status, error_message, created_at, updated_at`

// OpenRun creates a new pending run. A concurrent open for the same
// (source, hash) loses the index race and gets ErrAlreadyExists. Retrying
// after a terminal run opens a fresh row with a new id.
func (s *AnalysisService) OpenRun(ctx context.Context, sourceType models.ContentType, sourceID uuid.UUID, contentHash string) (*models.AnalysisRun, error) {
	if contentHash == "" {
		return nil, NewValidationError("content_hash", "is required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO analysis_runs (id, source_type, source_id, content_hash, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+runColumns,
		uuid.New(), sourceType, sourceID, contentHash)

	run, err := scanRun(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("opening analysis run: %w", err)
	}
	return run, nil
}

// GetRun returns a run by id.
func (s *AnalysisService) GetRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching analysis run: %w", err)
	}
	return run, nil
}

// ClaimPending atomically flips up to n pending runs to processing and
// returns them, oldest first. Concurrent claimers never receive the same run.
func (s *AnalysisService) ClaimPending(ctx context.Context, n int) ([]*models.AnalysisRun, error) {
	if n <= 0 {
		n = 1
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE analysis_runs SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM analysis_runs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+runColumns, n)
	if err != nil {
		return nil, fmt.Errorf("claiming analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning claimed run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claiming analysis runs: %w", err)
	}
	return runs, nil
}

// CompleteRun moves a processing run to completed. Runs not in processing
// are left alone and reported as ErrNotFound.
func (s *AnalysisService) CompleteRun(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, models.RunCompleted, nil)
}

// FailRun moves a processing run to failed with a descriptive message.
func (s *AnalysisService) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	return s.finish(ctx, id, models.RunFailed, &message)
}

func (s *AnalysisService) finish(ctx context.Context, id uuid.UUID, status models.RunStatus, message *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, status, message)
	if err != nil {
		return fmt.Errorf("finishing analysis run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepStale fails processing runs whose updated_at is older than the
// threshold. These are runs whose worker died without finishing; cascade
// delete of their partial graph happens when a fresh run commits.
func (s *AnalysisService) SweepStale(ctx context.Context, threshold time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = 'failed',
		    error_message = 'analysis run stuck in processing beyond staleness threshold',
		    updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		threshold.String())
	if err != nil {
		return 0, fmt.Errorf("sweeping stale runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row rowScanner) (*models.AnalysisRun, error) {
	var r models.AnalysisRun
	err := row.Scan(&r.ID, &r.SourceType, &r.SourceID, &r.ContentHash,
		&r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
