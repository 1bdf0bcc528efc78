package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/discourse"
	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/queue"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

// fakeAnalysisEngine returns a canned graph and a fixed embedding.
type fakeAnalysisEngine struct {
	result     *discourse.AnalysisResult
	analyzeErr error
	lastText   string
	embedCalls int
}

func (f *fakeAnalysisEngine) Analyze(ctx context.Context, req discourse.AnalyzeRequest) (*discourse.AnalysisResult, error) {
	f.lastText = req.Text
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return f.result, nil
}

func (f *fakeAnalysisEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, 1536)
		vectors[i][0] = 1
	}
	return vectors, nil
}

func intPtr(v int) *int { return &v }

func twoNodeResult() *discourse.AnalysisResult {
	return &discourse.AnalysisResult{
		Inodes: []discourse.ResultINode{
			{Content: "premise", EpistemicType: "FACT", SpanStart: 0, SpanEnd: 7},
			{Content: "conclusion", EpistemicType: "POLICY", SpanStart: 8, SpanEnd: 18},
		},
		Snodes: []discourse.ResultSNode{
			{Direction: "SUPPORT", Confidence: 0.9},
		},
		Edges: []discourse.ResultEdge{
			{SnodeIndex: 0, InodeIndex: intPtr(0), Role: "premise"},
			{SnodeIndex: 0, InodeIndex: intPtr(1), Role: "conclusion"},
		},
	}
}

func newExecutorFixture(t *testing.T, engine *fakeAnalysisEngine) (*queue.Executor, *services.AnalysisService, *services.GraphService, *models.Post, *pgxpool.Pool) {
	t.Helper()
	pool := util.SetupTestDatabase(t)
	runs := services.NewAnalysisService(pool)
	graphs := services.NewGraphService(pool)
	notifications := services.NewNotificationService(pool)
	gamify := services.NewGamifyService(pool, notifications)
	search := services.NewSearchService(pool, engine)

	author := util.CreateTestUser(t, pool, "author")
	post := util.CreateTestPost(t, pool, author.ID, "Executed", "body text")

	executor := queue.NewExecutor(pool, engine, runs, graphs, gamify, search)
	return executor, runs, graphs, post, pool
}

func TestExecutorCommitsGraph(t *testing.T) {
	ctx := context.Background()
	engine := &fakeAnalysisEngine{result: twoNodeResult()}
	executor, runs, graphs, post, pool := newExecutorFixture(t, engine)

	_, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	claimed, err := runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, executor.Execute(ctx, claimed[0]))

	got, err := runs.GetRun(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)

	// Posts analyze title plus body.
	assert.Equal(t, "Executed\nbody text", engine.lastText)

	// The committed graph carries the derived layer: roles and components.
	graph, err := graphs.GetRunGraph(ctx, claimed[0].ID)
	require.NoError(t, err)
	require.Len(t, graph.Inodes, 2)
	assert.Equal(t, models.RoleSupport, graph.Inodes[0].NodeRole)
	assert.Equal(t, models.RoleRoot, graph.Inodes[1].NodeRole)
	for _, n := range graph.Inodes {
		assert.NotNil(t, n.ComponentID)
	}

	// The search embedding landed, tagged with the analyzed revision.
	var storedHash string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT content_hash FROM content_embeddings WHERE content_id = $1`, post.ID).Scan(&storedHash))
	assert.Equal(t, post.AnalysisContentHash, storedHash)
	assert.Equal(t, 1, engine.embedCalls)
}

func TestExecutorSkipsEmbeddingForUnchangedContent(t *testing.T) {
	ctx := context.Background()
	engine := &fakeAnalysisEngine{result: twoNodeResult()}
	executor, runs, _, post, _ := newExecutorFixture(t, engine)

	_, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	claimed, err := runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, executor.Execute(ctx, claimed[0]))
	require.Equal(t, 1, engine.embedCalls)

	// A re-analysis of the same revision reuses the stored vector.
	_, err = runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	claimed, err = runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, executor.Execute(ctx, claimed[0]))

	assert.Equal(t, 1, engine.embedCalls)
}

func TestExecutorFailsOnEngineError(t *testing.T) {
	ctx := context.Background()
	engine := &fakeAnalysisEngine{analyzeErr: errors.New("engine down")}
	executor, runs, _, post, _ := newExecutorFixture(t, engine)

	_, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	claimed, err := runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	err = executor.Execute(ctx, claimed[0])
	assert.ErrorIs(t, err, services.ErrDependencyFailed)

	// The worker owns the terminal transition; Execute leaves it processing.
	got, err := runs.GetRun(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunProcessing, got.Status)
}

func TestExecutorRejectsEmptyAnalysis(t *testing.T) {
	ctx := context.Background()
	engine := &fakeAnalysisEngine{result: &discourse.AnalysisResult{}}
	executor, runs, _, post, _ := newExecutorFixture(t, engine)

	_, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	claimed, err := runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	assert.Error(t, executor.Execute(ctx, claimed[0]))
}
