package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/discourse"
	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

func ptr[T any](v T) *T { return &v }

func smallResult() *discourse.AnalysisResult {
	return &discourse.AnalysisResult{
		Inodes: []discourse.ResultINode{
			{Content: "CO2 levels rose 50% since 1850", EpistemicType: "FACT",
				SpanStart: 0, SpanEnd: 30, FVPConfidence: 0.9, ExtractionConfidence: 0.95,
				FactSubtype: ptr("ACADEMIC_REF"), SourceIndex: ptr(0)},
			{Content: "We should price carbon", EpistemicType: "POLICY",
				SpanStart: 31, SpanEnd: 53, FVPConfidence: 0.8, ExtractionConfidence: 0.9},
		},
		Snodes: []discourse.ResultSNode{
			{Direction: "SUPPORT", LogicType: ptr("INDUCTIVE"), Confidence: 0.85, GapDetected: true},
		},
		Edges: []discourse.ResultEdge{
			{SnodeIndex: 0, InodeIndex: ptr(0), Role: "premise"},
			{SnodeIndex: 0, InodeIndex: ptr(1), Role: "conclusion"},
		},
		Enthymemes: []discourse.ResultEnthymeme{
			{SnodeIndex: 0, Content: "Rising CO2 is harmful", FVPType: "VALUE", Probability: 0.7},
		},
		Questions: []discourse.ResultQuestion{
			{SnodeIndex: 0, Question: "Is the 1850 baseline appropriate?", Uncertainty: 0.4},
		},
		ExtractedValues: []discourse.ResultValue{
			{InodeIndex: 1, ValueName: "sustainability"},
		},
		Concepts: []discourse.ResultConcept{
			{Term: "carbon", Definition: "atmospheric CO2"},
		},
		ConceptMentions: []discourse.ResultMention{
			{InodeIndex: 0, ConceptIndex: 0, Term: "carbon"},
		},
		Sources: []discourse.ResultSource{
			{Level: "DOCUMENT", URL: ptr("https://example.org/co2"), Title: ptr("CO2 record"), Reputation: 0.8},
		},
	}
}

func TestCommitRun(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	runs := services.NewAnalysisService(pool)
	graphs := services.NewGraphService(pool)

	author := util.CreateTestUser(t, pool, "author")
	post := util.CreateTestPost(t, pool, author.ID, "Carbon", "argument text")

	run, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)
	_, err = runs.ClaimPending(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, graphs.CommitRun(ctx, run, smallResult()))
	require.NoError(t, runs.CompleteRun(ctx, run.ID))

	graph, err := graphs.GetRunGraph(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, graph.Inodes, 2)
	require.Len(t, graph.Snodes, 1)
	require.Len(t, graph.Edges, 2)
	require.Len(t, graph.Enthymemes, 1)
	require.Len(t, graph.Questions, 1)

	// Inodes come back in span order with their provenance attached.
	assert.Equal(t, "CO2 levels rose 50% since 1850", graph.Inodes[0].Content)
	assert.Equal(t, models.EpistemicFact, graph.Inodes[0].EpistemicType)
	assert.NotNil(t, graph.Inodes[0].SourceRefID)
	assert.Nil(t, graph.Inodes[1].SourceRefID)

	sn := graph.Snodes[0]
	assert.True(t, sn.GapDetected)
	assert.Equal(t, models.DirectionSupport, sn.Direction)

	assert.Equal(t, models.RolePremise, graph.Edges[0].Role)
	assert.Equal(t, sn.ID, graph.Edges[0].SNodeID)

	latest, err := graphs.LatestCompletedRun(ctx, models.ContentTypePost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
}

func TestCommitRunReplacesPredecessor(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	runs := services.NewAnalysisService(pool)
	graphs := services.NewGraphService(pool)

	author := util.CreateTestUser(t, pool, "author")
	post := util.CreateTestPost(t, pool, author.ID, "Edited", "first draft")

	first, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, "hash-v1")
	require.NoError(t, err)
	_, err = runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, graphs.CommitRun(ctx, first, smallResult()))
	require.NoError(t, runs.CompleteRun(ctx, first.ID))

	second, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, "hash-v2")
	require.NoError(t, err)
	_, err = runs.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, graphs.CommitRun(ctx, second, smallResult()))
	require.NoError(t, runs.CompleteRun(ctx, second.ID))

	// The first run and its whole graph are gone.
	_, err = runs.GetRun(ctx, first.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	old, err := graphs.GetRunGraph(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, old.Inodes)
	assert.Empty(t, old.Snodes)

	latest, err := graphs.LatestCompletedRun(ctx, models.ContentTypePost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestCommitRunValidation(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	runs := services.NewAnalysisService(pool)
	graphs := services.NewGraphService(pool)

	author := util.CreateTestUser(t, pool, "author")
	post := util.CreateTestPost(t, pool, author.ID, "Invalid", "content")

	run, err := runs.OpenRun(ctx, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	require.NoError(t, err)

	var validErr *services.ValidationError

	t.Run("premise edge needs an origin", func(t *testing.T) {
		result := smallResult()
		result.Edges[0].InodeIndex = nil
		err := graphs.CommitRun(ctx, run, result)
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("conclusion edge cannot cite a source", func(t *testing.T) {
		result := smallResult()
		result.Edges[1].SourceIndex = ptr(0)
		err := graphs.CommitRun(ctx, run, result)
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("inverted span", func(t *testing.T) {
		result := smallResult()
		result.Inodes[0].SpanEnd = result.Inodes[0].SpanStart
		err := graphs.CommitRun(ctx, run, result)
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("edge references unknown scheme", func(t *testing.T) {
		result := smallResult()
		result.Edges[0].SnodeIndex = 9
		err := graphs.CommitRun(ctx, run, result)
		assert.ErrorAs(t, err, &validErr)
	})

	// A failed commit leaves nothing behind.
	graph, err := graphs.GetRunGraph(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, graph.Inodes)
	assert.Empty(t, graph.Snodes)
}
