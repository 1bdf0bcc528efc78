package services_test

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

func TestPathLabel(t *testing.T) {
	id := uuid.MustParse("a1b2c3d4-e5f6-4789-8abc-def012345678")
	label := services.PathLabel(id)
	assert.Equal(t, "a1b2c3d4_e5f6_4789_8abc_def012345678", label)
	assert.NotContains(t, label, "-")
}

func TestContentHash(t *testing.T) {
	h := services.ContentHash("Title", "body")
	assert.Len(t, h, 64)

	// Hashing is stable and normalizes surrounding whitespace.
	assert.Equal(t, h, services.ContentHash("  Title  ", "body\n"))
	assert.NotEqual(t, h, services.ContentHash("Title", "other body"))
}

func TestContentThreading(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewContentService(pool)

	author := util.CreateTestUser(t, pool, "alice")
	post := util.CreateTestPost(t, pool, author.ID, "First post", "Hello world")
	assert.NotEmpty(t, post.AnalysisContentHash)

	root, err := svc.CreateReply(ctx, services.CreateReplyInput{
		AuthorID: author.ID,
		PostID:   post.ID,
		Content:  "root reply",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, services.PathLabel(root.ID), root.Path)

	child, err := svc.CreateReply(ctx, services.CreateReplyInput{
		AuthorID:      author.ID,
		PostID:        post.ID,
		ParentReplyID: &root.ID,
		Content:       "child reply",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, root.Path+"."+services.PathLabel(child.ID), child.Path)

	// Reply counters are trigger-maintained: the post counts the whole
	// subtree, the parent counts direct children.
	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReplyCount)

	gotRoot, err := svc.GetReply(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotRoot.ReplyCount)
}

func TestCreateReplyValidation(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewContentService(pool)

	author := util.CreateTestUser(t, pool, "alice")
	post := util.CreateTestPost(t, pool, author.ID, "A post", "content")
	other := util.CreateTestPost(t, pool, author.ID, "Another post", "content")

	t.Run("empty content", func(t *testing.T) {
		_, err := svc.CreateReply(ctx, services.CreateReplyInput{
			AuthorID: author.ID, PostID: post.ID, Content: "",
		})
		var validErr *services.ValidationError
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := svc.CreateReply(ctx, services.CreateReplyInput{
			AuthorID: author.ID, PostID: uuid.New(), Content: "hi",
		})
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("parent from a different post", func(t *testing.T) {
		parent, err := svc.CreateReply(ctx, services.CreateReplyInput{
			AuthorID: author.ID, PostID: other.ID, Content: "elsewhere",
		})
		require.NoError(t, err)

		_, err = svc.CreateReply(ctx, services.CreateReplyInput{
			AuthorID: author.ID, PostID: post.ID, ParentReplyID: &parent.ID, Content: "hi",
		})
		var validErr *services.ValidationError
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("quote text too long", func(t *testing.T) {
		_, err := svc.CreateReply(ctx, services.CreateReplyInput{
			AuthorID: author.ID, PostID: post.ID, Content: "hi",
			Quote: &services.QuoteInput{
				Text:       strings.Repeat("x", models.MaxQuotedTextLength+1),
				SourceType: models.ContentTypePost,
				SourceID:   post.ID,
			},
		})
		var validErr *services.ValidationError
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("quote provenance stored", func(t *testing.T) {
		reply, err := svc.CreateReply(ctx, services.CreateReplyInput{
			AuthorID: author.ID, PostID: post.ID, Content: "quoting",
			Quote: &services.QuoteInput{
				Text:       "Hello",
				SourceType: models.ContentTypePost,
				SourceID:   post.ID,
			},
		})
		require.NoError(t, err)
		require.NotNil(t, reply.QuotedText)
		assert.Equal(t, "Hello", *reply.QuotedText)
		require.NotNil(t, reply.QuotedSourceType)
		assert.Equal(t, models.ContentTypePost, *reply.QuotedSourceType)
	})
}

func TestListRepliesThreadedOrder(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewContentService(pool)

	author := util.CreateTestUser(t, pool, "alice")
	post := util.CreateTestPost(t, pool, author.ID, "Threaded", "content")

	first, err := svc.CreateReply(ctx, services.CreateReplyInput{
		AuthorID: author.ID, PostID: post.ID, Content: "first root",
	})
	require.NoError(t, err)
	nested, err := svc.CreateReply(ctx, services.CreateReplyInput{
		AuthorID: author.ID, PostID: post.ID, ParentReplyID: &first.ID, Content: "nested",
	})
	require.NoError(t, err)
	second, err := svc.CreateReply(ctx, services.CreateReplyInput{
		AuthorID: author.ID, PostID: post.ID, Content: "second root",
	})
	require.NoError(t, err)

	replies, hasMore, err := svc.ListReplies(ctx, post.ID, 50, "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, replies, 3)

	// Path order is depth-first: a nested reply sorts directly after its
	// parent, never between unrelated roots.
	index := make(map[uuid.UUID]int, len(replies))
	for i, r := range replies {
		index[r.ID] = i
	}
	assert.Equal(t, index[first.ID]+1, index[nested.ID])
	assert.True(t, sort.SliceIsSorted(replies, func(i, j int) bool {
		return replies[i].Path < replies[j].Path
	}))
	assert.Contains(t, index, second.ID)

	// Paging resumes after the given path without overlap.
	page1, hasMore, err := svc.ListReplies(ctx, post.ID, 2, "")
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page1, 2)

	page2, hasMore, err := svc.ListReplies(ctx, post.ID, 2, page1[1].Path)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page2, 1)
	assert.Equal(t, replies[2].ID, page2[0].ID)
}

func TestSoftDelete(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewContentService(pool)

	author := util.CreateTestUser(t, pool, "alice")
	stranger := util.CreateTestUser(t, pool, "bob")
	system := util.CreateSystemUser(t, pool)

	post := util.CreateTestPost(t, pool, author.ID, "Doomed", "content")

	err := svc.SoftDelete(ctx, models.ContentTypePost, post.ID, stranger)
	assert.ErrorIs(t, err, services.ErrForbidden)

	require.NoError(t, svc.SoftDelete(ctx, models.ContentTypePost, post.ID, author))
	_, err = svc.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	// Deleting again finds nothing.
	err = svc.SoftDelete(ctx, models.ContentTypePost, post.ID, author)
	assert.ErrorIs(t, err, services.ErrNotFound)

	// System accounts may delete content they did not author.
	other := util.CreateTestPost(t, pool, author.ID, "Also doomed", "content")
	require.NoError(t, svc.SoftDelete(ctx, models.ContentTypePost, other.ID, system))
}
