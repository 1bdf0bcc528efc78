package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agora-discourse/agora/pkg/discourse"
	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/objectstore"
)

// Engine is the async batch surface of the discourse engine client.
type Engine interface {
	SubmitBatch(ctx context.Context, requests []json.RawMessage) (string, error)
	PollBatch(ctx context.Context, jobName string) (*discourse.BatchStatus, error)
}

// Stage transforms the previous stage's results into the next batch of
// requests. The first stage receives the run's seed requests.
type Stage interface {
	Name() string
	Requests(ctx context.Context, previous []json.RawMessage) ([]json.RawMessage, error)
}

// Sink receives the final stage's results once a run completes.
type Sink func(ctx context.Context, runID string, results []json.RawMessage) error

// Poll cadence for in-flight external jobs.
const defaultPollInterval = 15 * time.Second

// Orchestrator drives pipeline runs through their stages with checkpointed
// resume.
type Orchestrator struct {
	store        *Store
	engine       Engine
	objects      objectstore.Store
	stages       []Stage
	sink         Sink
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewOrchestrator wires an orchestrator over a fixed stage sequence.
func NewOrchestrator(store *Store, engine Engine, objects objectstore.Store, stages []Stage, sink Sink) *Orchestrator {
	if store == nil {
		panic("store is required")
	}
	if engine == nil {
		panic("engine is required")
	}
	if objects == nil {
		panic("objects is required")
	}
	if len(stages) == 0 {
		panic("at least one stage is required")
	}
	return &Orchestrator{
		store:        store,
		engine:       engine,
		objects:      objects,
		stages:       stages,
		sink:         sink,
		pollInterval: defaultPollInterval,
		logger:       slog.Default().With("component", "pipeline"),
	}
}

// StartRun creates a run and drives it to a terminal state.
func (o *Orchestrator) StartRun(ctx context.Context, runID string, sourceType models.ContentType, seed []json.RawMessage) error {
	run, err := o.store.CreateRun(ctx, runID, sourceType, len(seed))
	if err != nil {
		return err
	}
	return o.drive(ctx, run.ID, seed)
}

// ResumeAll picks up every running pipeline after a restart. Runs resume
// concurrently; the first hard failure cancels the rest.
func (o *Orchestrator) ResumeAll(ctx context.Context) error {
	runs, err := o.store.RunningRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	o.logger.Info("Resuming pipeline runs", "count", len(runs))

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		g.Go(func() error {
			return o.drive(ctx, run.ID, nil)
		})
	}
	return g.Wait()
}

// drive walks the stage sequence. Per stage, in order of preference: a
// completed checkpoint is read back from object storage; an in-flight job is
// re-polled; otherwise the stage submits fresh work. seed is only consulted
// when stage 0 has no checkpoint (a resumed run rebuilds nothing it already
// submitted).
func (o *Orchestrator) drive(ctx context.Context, runID string, seed []json.RawMessage) error {
	log := o.logger.With("run_id", runID)
	previous := seed

	for i, stage := range o.stages {
		results, err := o.runStage(ctx, runID, stage, previous)
		if err != nil {
			msg := err.Error()
			if ferr := o.store.FinishRun(ctx, runID, models.PipelineFailed, &msg); ferr != nil {
				log.Error("Failed to mark pipeline failed", "error", ferr)
			}
			return fmt.Errorf("stage %s (%d/%d): %w", stage.Name(), i+1, len(o.stages), err)
		}
		previous = results
		log.Info("Pipeline stage complete", "stage", stage.Name(), "results", len(results))
	}

	if o.sink != nil {
		if err := o.sink(ctx, runID, previous); err != nil {
			msg := err.Error()
			if ferr := o.store.FinishRun(ctx, runID, models.PipelineFailed, &msg); ferr != nil {
				log.Error("Failed to mark pipeline failed", "error", ferr)
			}
			return fmt.Errorf("pipeline sink: %w", err)
		}
	}

	if err := o.store.FinishRun(ctx, runID, models.PipelineCompleted, nil); err != nil {
		return err
	}
	log.Info("Pipeline run completed")
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, runID string, stage Stage, previous []json.RawMessage) ([]json.RawMessage, error) {
	cp, err := o.store.Checkpoint(ctx, runID, stage.Name())
	if err != nil {
		return nil, err
	}

	if cp != nil && cp.Completed {
		if cp.GCSPath == nil {
			return nil, fmt.Errorf("completed checkpoint for stage %s has no result path", stage.Name())
		}
		return o.loadResults(ctx, *cp.GCSPath)
	}

	var jobName string
	if cp != nil && cp.GeminiJobName != nil {
		// Crash happened between submit and completion: re-poll, never
		// re-submit.
		jobName = *cp.GeminiJobName
	} else {
		requests, err := stage.Requests(ctx, previous)
		if err != nil {
			return nil, fmt.Errorf("building requests: %w", err)
		}
		jobName, err = o.engine.SubmitBatch(ctx, requests)
		if err != nil {
			return nil, fmt.Errorf("submitting batch: %w", err)
		}
		if err := o.store.RecordSubmission(ctx, runID, stage.Name(), jobName, len(requests)); err != nil {
			return nil, err
		}
	}

	results, err := o.awaitJob(ctx, jobName)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("pipelines/%s/%s.json", runID, stage.Name())
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encoding stage results: %w", err)
	}
	if err := o.objects.Put(ctx, path, raw); err != nil {
		return nil, fmt.Errorf("storing stage results: %w", err)
	}
	if err := o.store.CompleteStage(ctx, runID, stage.Name(), path); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) awaitJob(ctx context.Context, jobName string) ([]json.RawMessage, error) {
	for {
		status, err := o.engine.PollBatch(ctx, jobName)
		if err != nil {
			return nil, err
		}
		switch status.State {
		case discourse.BatchSucceeded:
			return status.Results, nil
		case discourse.BatchFailed:
			return nil, fmt.Errorf("batch job %s failed: %s", jobName, status.Error)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

func (o *Orchestrator) loadResults(ctx context.Context, path string) ([]json.RawMessage, error) {
	raw, err := objectstore.GetWithRetry(ctx, o.objects, path)
	if err != nil {
		return nil, err
	}
	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decoding checkpoint at %s: %w", path, err)
	}
	return results, nil
}
