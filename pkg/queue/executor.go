package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/discourse"
	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
)

// AnalysisEngine is the subset of the discourse client the executor needs.
type AnalysisEngine interface {
	Analyze(ctx context.Context, req discourse.AnalyzeRequest) (*discourse.AnalysisResult, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Executor processes one claimed analysis run end to end: fetch the source
// text, call the engine, commit the graph, derive the V4 layer, refresh the
// content's search embedding, and finish the run.
type Executor struct {
	pool   *pgxpool.Pool
	engine AnalysisEngine
	runs   *services.AnalysisService
	graph  *services.GraphService
	gamify *services.GamifyService
	search *services.SearchService
	logger *slog.Logger
}

// NewExecutor creates an analysis executor.
func NewExecutor(pool *pgxpool.Pool, engine AnalysisEngine, runs *services.AnalysisService, graph *services.GraphService, gamify *services.GamifyService, search *services.SearchService) *Executor {
	if pool == nil {
		panic("pool is required")
	}
	if engine == nil {
		panic("engine is required")
	}
	return &Executor{
		pool:   pool,
		engine: engine,
		runs:   runs,
		graph:  graph,
		gamify: gamify,
		search: search,
		logger: slog.Default().With("component", "analysis_executor"),
	}
}

// Execute runs the analysis for one claimed run. A returned error leaves the
// run for the worker to fail; success finishes it as completed.
func (e *Executor) Execute(ctx context.Context, run *models.AnalysisRun) error {
	text, err := e.sourceText(ctx, run)
	if err != nil {
		return err
	}

	result, err := e.engine.Analyze(ctx, discourse.AnalyzeRequest{
		Text:       text,
		SourceType: string(run.SourceType),
		SourceID:   run.SourceID,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", services.ErrDependencyFailed, err)
	}
	if result.Empty() {
		return fmt.Errorf("discourse engine returned no analysis")
	}

	if err := e.graph.CommitRun(ctx, run, result); err != nil {
		return fmt.Errorf("committing graph: %w", err)
	}
	if err := e.gamify.BackfillRoles(ctx, run.ID); err != nil {
		return fmt.Errorf("backfilling roles: %w", err)
	}
	if err := e.gamify.PartitionComponents(ctx, run.ID); err != nil {
		return fmt.Errorf("partitioning components: %w", err)
	}
	if _, err := e.gamify.DetectEquivocations(ctx, run.ID); err != nil {
		return fmt.Errorf("detecting equivocations: %w", err)
	}

	// The search embedding rides along with analysis; a failure here is not
	// worth failing an otherwise committed run.
	if err := e.refreshSearchEmbedding(ctx, run, text); err != nil {
		e.logger.Warn("Failed to refresh search embedding",
			"run_id", run.ID, "error", err)
	}

	return e.runs.CompleteRun(ctx, run.ID)
}

// sourceText loads the text of the run's source. Posts analyze title plus
// body, replies just the body.
func (e *Executor) sourceText(ctx context.Context, run *models.AnalysisRun) (string, error) {
	switch run.SourceType {
	case models.ContentTypePost:
		var title, content string
		err := e.pool.QueryRow(ctx,
			`SELECT title, content FROM posts WHERE id = $1 AND deleted_at IS NULL`,
			run.SourceID).Scan(&title, &content)
		if err != nil {
			return "", fmt.Errorf("loading post for analysis: %w", err)
		}
		return title + "\n" + content, nil
	case models.ContentTypeReply:
		var content string
		err := e.pool.QueryRow(ctx,
			`SELECT content FROM replies WHERE id = $1 AND deleted_at IS NULL`,
			run.SourceID).Scan(&content)
		if err != nil {
			return "", fmt.Errorf("loading reply for analysis: %w", err)
		}
		return content, nil
	default:
		return "", fmt.Errorf("unknown source type %q", run.SourceType)
	}
}

// refreshSearchEmbedding re-embeds the run's source unless the stored vector
// was already computed from the same content hash.
func (e *Executor) refreshSearchEmbedding(ctx context.Context, run *models.AnalysisRun, text string) error {
	existing, err := e.search.EmbeddedHash(ctx, run.SourceType, run.SourceID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return err
	}
	if err == nil && existing == run.ContentHash {
		return nil
	}

	vectors, err := e.engine.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	return e.search.UpsertContentEmbedding(ctx, run.SourceType, run.SourceID, run.ContentHash, vectors[0])
}
