package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/config"
	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
)

// Worker is a single queue worker that polls for and processes analysis runs.
type Worker struct {
	id       string
	pool     *pgxpool.Pool
	config   *config.QueueConfig
	runs     *services.AnalysisService
	executor RunExecutor
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, pool *pgxpool.Pool, cfg *config.QueueConfig, runs *services.AnalysisService, executor RunExecutor) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		config:       cfg,
		runs:         runs,
		executor:     executor,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. It is safe to
// call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing analysis run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next pending run and executes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	claimed, err := w.runs.ClaimPending(ctx, 1)
	if err != nil {
		return fmt.Errorf("claiming run: %w", err)
	}
	if len(claimed) == 0 {
		return ErrNoRunsAvailable
	}
	run := claimed[0]

	log := slog.With("run_id", run.ID, "worker_id", w.id)
	log.Info("Analysis run claimed", "source_type", run.SourceType, "source_id", run.SourceID)

	w.setStatus(WorkerStatusWorking, run.ID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	runCtx, cancelRun := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancelRun()

	// Heartbeat keeps updated_at fresh so the staleness sweeper does not
	// fail a live run.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	go w.runHeartbeat(heartbeatCtx, run)
	defer cancelHeartbeat()

	err = w.executor.Execute(runCtx, run)
	cancelHeartbeat()

	if err != nil {
		// Terminal status writes use a background context; runCtx may
		// already be dead.
		message := err.Error()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			message = fmt.Sprintf("analysis timed out after %v", w.config.RunTimeout)
		}
		if ferr := w.runs.FailRun(context.Background(), run.ID, message); ferr != nil {
			log.Error("Failed to mark run failed", "error", ferr)
		}
		log.Warn("Analysis run failed", "error", err)
	} else {
		log.Info("Analysis run complete")
	}

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()
	return nil
}

// runHeartbeat periodically touches the run's updated_at.
func (w *Worker) runHeartbeat(ctx context.Context, run *models.AnalysisRun) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.pool.Exec(ctx,
				`UPDATE analysis_runs SET updated_at = now() WHERE id = $1 AND status = 'processing'`,
				run.ID)
			if err != nil {
				slog.Warn("Heartbeat update failed", "run_id", run.ID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
