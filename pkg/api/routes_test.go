package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/auth"
	"github.com/agora-discourse/agora/pkg/blocklist"
	"github.com/agora-discourse/agora/pkg/config"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

// newRoutedServer wires a full server against a real database. The worker
// pool stays nil; none of the exercised routes touch it.
func newRoutedServer(t *testing.T) (http.Handler, *auth.TokenIssuer, *services.AnalysisService, *pgxpool.Pool) {
	t.Helper()
	pool := util.SetupTestDatabase(t)

	cfg := &config.Config{
		Server: &config.ServerConfig{
			InternalSecret: "hunter2",
			RequestTimeout: 15 * time.Second,
		},
		Auth: testAuthConfig(),
	}
	tokens := auth.NewTokenIssuer(cfg.Auth)

	content := services.NewContentService(pool)
	notifications := services.NewNotificationService(pool)
	analysis := services.NewAnalysisService(pool)
	server := NewServer(cfg, Dependencies{
		DB:            pool,
		Users:         services.NewUserService(pool),
		Content:       content,
		Votes:         services.NewVoteService(pool),
		Feeds:         services.NewFeedService(pool),
		Follows:       services.NewFollowService(pool),
		Notifications: notifications,
		Search:        services.NewSearchService(pool, nullEmbedder{}),
		Arguments:     services.NewArgumentService(pool),
		Analysis:      analysis,
		Tokens:        tokens,
		Blocklist:     blocklist.New(),
	})
	return server.Handler(), tokens, analysis, pool
}

type nullEmbedder struct{}

func (nullEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, 1536)
	}
	return vectors, nil
}

// doJSON performs one request against the routing tree and decodes the
// envelope.
func doJSON(t *testing.T, h http.Handler, method, target, token string, body any) (int, Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec.Code, envelope
}

func dataField[T any](t *testing.T, envelope Envelope, key string) T {
	t.Helper()
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %v", envelope.Data)
	v, ok := data[key].(T)
	require.True(t, ok, "field %q missing or wrong type in %v", key, data)
	return v
}

func TestPostVoteCycle(t *testing.T) {
	h, tokens, analysis, pool := newRoutedServer(t)
	ctx := context.Background()

	alice := util.CreateTestUser(t, pool, "alice")
	bob := util.CreateTestUser(t, pool, "bob")
	aliceToken, err := tokens.Issue(alice.ID, alice.Email, false)
	require.NoError(t, err)
	bobToken, err := tokens.Issue(bob.ID, bob.Email, false)
	require.NoError(t, err)

	// Unauthenticated writes bounce.
	code, _ := doJSON(t, h, http.MethodPost, "/api/v1/posts", "", CreatePostRequest{Title: "T", Content: "C"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, envelope := doJSON(t, h, http.MethodPost, "/api/v1/posts", aliceToken,
		CreatePostRequest{Title: "T", Content: "C"})
	require.Equal(t, http.StatusCreated, code)
	postID := dataField[string](t, envelope, "id")

	// Creation opened a pending analysis run for the post.
	claimed, err := analysis.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, postID, claimed[0].SourceID.String())

	get := func() (score, count float64) {
		code, envelope := doJSON(t, h, http.MethodGet, "/api/v1/posts/"+postID, bobToken, nil)
		require.Equal(t, http.StatusOK, code)
		return dataField[float64](t, envelope, "score"), dataField[float64](t, envelope, "vote_count")
	}

	score, count := get()
	assert.Zero(t, score)
	assert.Zero(t, count)

	target := uuid.MustParse(postID)
	code, _ = doJSON(t, h, http.MethodPost, "/api/v1/votes", bobToken,
		VoteRequest{TargetType: "post", TargetID: target, Value: 1})
	require.Equal(t, http.StatusOK, code)
	score, count = get()
	assert.Equal(t, 1.0, score)
	assert.Equal(t, 1.0, count)

	// Flipping the vote changes the score but not the count.
	code, _ = doJSON(t, h, http.MethodPost, "/api/v1/votes", bobToken,
		VoteRequest{TargetType: "post", TargetID: target, Value: -1})
	require.Equal(t, http.StatusOK, code)
	score, count = get()
	assert.Equal(t, -1.0, score)
	assert.Equal(t, 1.0, count)

	code, _ = doJSON(t, h, http.MethodDelete, "/api/v1/votes", bobToken,
		VoteRequest{TargetType: "post", TargetID: target})
	require.Equal(t, http.StatusOK, code)
	score, count = get()
	assert.Zero(t, score)
	assert.Zero(t, count)
}

func TestReplyQuoteAllOrNone(t *testing.T) {
	h, tokens, _, pool := newRoutedServer(t)

	alice := util.CreateTestUser(t, pool, "alice")
	bob := util.CreateTestUser(t, pool, "bob")
	post := util.CreateTestPost(t, pool, alice.ID, "Quoted", "original text")
	bobToken, err := tokens.Issue(bob.ID, bob.Email, false)
	require.NoError(t, err)

	base := "/api/v1/posts/" + post.ID.String() + "/replies"

	// Partial quote fields are rejected.
	code, envelope := doJSON(t, h, http.MethodPost, base, bobToken, CreateReplyRequest{
		Content:          "agreed",
		QuotedText:       "original text",
		QuotedSourceType: "post",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(KindValidationFailed), envelope.Error)

	postID := post.ID
	code, envelope = doJSON(t, h, http.MethodPost, base, bobToken, CreateReplyRequest{
		Content:          "agreed",
		QuotedText:       "original text",
		QuotedSourceType: "post",
		QuotedSourceID:   &postID,
	})
	require.Equal(t, http.StatusCreated, code)
	replyID := dataField[string](t, envelope, "id")

	// Quote fields round-trip on read.
	code, envelope = doJSON(t, h, http.MethodGet, "/api/v1/replies/"+replyID, bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "original text", dataField[string](t, envelope, "quoted_text"))

	// The post author got a coalesced social notification.
	aliceToken, err := tokens.Issue(alice.ID, alice.Email, false)
	require.NoError(t, err)
	code, envelope = doJSON(t, h, http.MethodGet, "/api/v1/notifications?category=SOCIAL", aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	items, ok := envelope.Data.(map[string]any)["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestRouteNotFoundEnvelope(t *testing.T) {
	h, tokens, _, pool := newRoutedServer(t)

	alice := util.CreateTestUser(t, pool, "alice")
	token, err := tokens.Issue(alice.ID, alice.Email, false)
	require.NoError(t, err)

	code, envelope := doJSON(t, h, http.MethodGet, "/api/v1/posts/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(KindNotFound), envelope.Error)
}
