package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/config"
	"github.com/agora-discourse/agora/pkg/services"
)

// WorkerPool manages the analysis workers plus the staleness sweeper that
// fails runs whose worker died mid-flight.
type WorkerPool struct {
	pool     *pgxpool.Pool
	config   *config.QueueConfig
	runs     *services.AnalysisService
	executor RunExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	lastSweep time.Time
	sweptRuns int
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(pool *pgxpool.Pool, cfg *config.QueueConfig, runs *services.AnalysisService, executor RunExecutor) *WorkerPool {
	return &WorkerPool{
		pool:     pool,
		config:   cfg,
		runs:     runs,
		executor: executor,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns worker goroutines and the staleness sweeper. It is safe to
// call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true
	p.mu.Unlock()

	slog.Info("Starting analysis worker pool", "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.pool, p.config, p.runs, p.executor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runStaleSweeper(ctx)
	}()

	slog.Info("Analysis worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current runs.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping analysis worker pool gracefully")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Analysis worker pool stopped gracefully")
}

// runStaleSweeper periodically fails processing runs whose heartbeat went
// quiet for longer than the staleness threshold.
func (p *WorkerPool) runStaleSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := p.runs.SweepStale(ctx, p.config.StalenessThreshold)
			if err != nil {
				slog.Error("Staleness sweep failed", "error", err)
				continue
			}
			p.mu.Lock()
			p.lastSweep = time.Now()
			p.sweptRuns += swept
			p.mu.Unlock()
			if swept > 0 {
				slog.Warn("Failed stale analysis runs", "count", swept)
			}
		}
	}
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	var queueDepth int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM analysis_runs WHERE status = 'pending'`).Scan(&queueDepth)
	if err != nil {
		slog.Error("Failed to query queue depth for health check", "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	p.mu.Lock()
	lastSweep := p.lastSweep
	sweptRuns := p.sweptRuns
	p.mu.Unlock()

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && err == nil,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepth:    queueDepth,
		WorkerStats:   workerStats,
		LastSweep:     lastSweep,
		SweptRuns:     sweptRuns,
	}
}
