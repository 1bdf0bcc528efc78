package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

func TestAnalysisRunLifecycle(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewAnalysisService(pool)

	author := util.CreateTestUser(t, pool, "author")
	post := util.CreateTestPost(t, pool, author.ID, "Analyzed", "content")

	_, err := svc.OpenRun(ctx, models.ContentTypePost, post.ID, "")
	var validErr *services.ValidationError
	assert.ErrorAs(t, err, &validErr)

	run, err := svc.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)

	// Only one open run per (source, hash).
	_, err = svc.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	assert.ErrorIs(t, err, services.ErrAlreadyExists)

	// A changed hash is a different unit of work.
	other, err := svc.OpenRun(ctx, models.ContentTypePost, post.ID, "different-hash")
	require.NoError(t, err)

	// Completing a run that is still pending does nothing.
	assert.ErrorIs(t, svc.CompleteRun(ctx, run.ID), services.ErrNotFound)

	claimed, err := svc.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, run.ID, claimed[0].ID, "claims are oldest first")
	assert.Equal(t, models.RunProcessing, claimed[0].Status)

	// The second pending run is untouched and claimed next.
	claimed, err = svc.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, other.ID, claimed[0].ID)

	require.NoError(t, svc.CompleteRun(ctx, run.ID))
	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)

	// Terminal runs cannot be finished twice.
	assert.ErrorIs(t, svc.CompleteRun(ctx, run.ID), services.ErrNotFound)

	require.NoError(t, svc.FailRun(ctx, other.ID, "model unavailable"))
	got, err = svc.GetRun(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "model unavailable", *got.ErrorMessage)

	// With both runs terminal the same (source, hash) may be reopened.
	reopened, err := svc.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, reopened.ID)

	_, err = svc.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSweepStale(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewAnalysisService(pool)

	author := util.CreateTestUser(t, pool, "author")
	post := util.CreateTestPost(t, pool, author.ID, "Stuck", "content")

	run, err := svc.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	claimed, err := svc.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Nothing is stale yet.
	n, err := svc.SweepStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Backdate the heartbeat to simulate a worker that died mid-run.
	_, err = pool.Exec(ctx,
		`UPDATE analysis_runs SET updated_at = now() - interval '2 hours' WHERE id = $1`, run.ID)
	require.NoError(t, err)

	n, err = svc.SweepStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
}
