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

func TestNotifyReplyCoalescing(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewNotificationService(pool)

	author := util.CreateTestUser(t, pool, "author")
	alice := util.CreateTestUser(t, pool, "alice")
	bob := util.CreateTestUser(t, pool, "bob")
	post := util.CreateTestPost(t, pool, author.ID, "Watched", "content")

	// Replying to your own content makes no noise.
	require.NoError(t, svc.NotifyReply(ctx, author.ID, author.ID, models.ContentTypePost, post.ID))
	items, _, _, err := svc.ListNotifications(ctx, author.ID, models.NotificationSocial, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, svc.NotifyReply(ctx, author.ID, alice.ID, models.ContentTypePost, post.ID))
	require.NoError(t, svc.NotifyReply(ctx, author.ID, bob.ID, models.ContentTypePost, post.ID))

	// Two replies to the same target fold into a single row.
	items, _, hasMore, err := svc.ListNotifications(ctx, author.ID, models.NotificationSocial, 10, nil)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, items, 1)
	n := items[0]
	assert.Equal(t, 2, n.ReplyCount)
	require.NotNil(t, n.LastReplyAuthorID)
	assert.Equal(t, bob.ID, *n.LastReplyAuthorID)
	assert.Equal(t, post.ID, n.TargetID)
}

func TestNotifyEpistemic(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewNotificationService(pool)

	alice := util.CreateTestUser(t, pool, "alice")
	target := uuid.New()

	err := svc.NotifyEpistemic(ctx, alice.ID, models.EpistemicBountyPaid, "snode", target,
		map[string]any{"amount": 5})
	require.NoError(t, err)

	items, _, _, err := svc.ListNotifications(ctx, alice.ID, models.NotificationEpistemic, 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].EpistemicType)
	assert.Equal(t, models.EpistemicBountyPaid, *items[0].EpistemicType)
	assert.JSONEq(t, `{"amount":5}`, string(items[0].Payload))
	assert.False(t, items[0].IsRead)

	// Epistemic rows do not leak into the social tab.
	social, _, _, err := svc.ListNotifications(ctx, alice.ID, models.NotificationSocial, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, social)

	// A newer event on the same target replaces the old one and resets
	// its read bit.
	require.NoError(t, svc.MarkRead(ctx, alice.ID, []uuid.UUID{items[0].ID}))
	err = svc.NotifyEpistemic(ctx, alice.ID, models.EpistemicBountyStolen, "snode", target,
		map[string]any{"thief": "bob"})
	require.NoError(t, err)

	items, _, _, err = svc.ListNotifications(ctx, alice.ID, models.NotificationEpistemic, 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.EpistemicBountyStolen, *items[0].EpistemicType)
	assert.False(t, items[0].IsRead)
}

func TestListNotificationsPagination(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewNotificationService(pool)

	alice := util.CreateTestUser(t, pool, "alice")

	_, _, _, err := svc.ListNotifications(ctx, alice.ID, "PROMOTIONS", 10, nil)
	var validErr *services.ValidationError
	assert.ErrorAs(t, err, &validErr)

	for i := 0; i < 5; i++ {
		err := svc.NotifyEpistemic(ctx, alice.ID, models.EpistemicStreamHalted,
			"inode", uuid.New(), map[string]any{"n": i})
		require.NoError(t, err)
	}

	page1, cursor, hasMore, err := svc.ListNotifications(ctx, alice.ID, models.NotificationEpistemic, 3, nil)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.NotNil(t, cursor)
	require.Len(t, page1, 3)

	page2, _, hasMore, err := svc.ListNotifications(ctx, alice.ID, models.NotificationEpistemic, 3, cursor)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page2, 2)

	seen := make(map[uuid.UUID]bool)
	last := time.Now().Add(time.Hour)
	for _, n := range append(page1, page2...) {
		assert.False(t, seen[n.ID], "notification %s appeared twice", n.ID)
		seen[n.ID] = true
		assert.False(t, n.UpdatedAt.After(last), "rows must be newest first")
		last = n.UpdatedAt
	}
}

func TestMarkViewedAndRead(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewNotificationService(pool)
	users := services.NewUserService(pool)

	alice := util.CreateTestUser(t, pool, "alice")
	bob := util.CreateTestUser(t, pool, "bob")
	require.Nil(t, alice.NotificationsLastViewedAt)

	assert.ErrorIs(t, svc.MarkViewed(ctx, "nobody"), services.ErrNotFound)

	require.NoError(t, svc.MarkViewed(ctx, alice.ID))
	got, err := users.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NotificationsLastViewedAt)
	assert.WithinDuration(t, time.Now(), *got.NotificationsLastViewedAt, time.Minute)

	// MarkRead flips only the caller's own epistemic rows.
	var ids []uuid.UUID
	for i, recipient := range []string{alice.ID, bob.ID} {
		err := svc.NotifyEpistemic(ctx, recipient, models.EpistemicBountyPaid,
			"snode", uuid.New(), map[string]any{"n": i})
		require.NoError(t, err)
		items, _, _, err := svc.ListNotifications(ctx, recipient, models.NotificationEpistemic, 10, nil)
		require.NoError(t, err)
		require.Len(t, items, 1)
		ids = append(ids, items[0].ID)
	}

	require.NoError(t, svc.MarkRead(ctx, alice.ID, ids))

	aliceItems, _, _, err := svc.ListNotifications(ctx, alice.ID, models.NotificationEpistemic, 10, nil)
	require.NoError(t, err)
	assert.True(t, aliceItems[0].IsRead)

	bobItems, _, _, err := svc.ListNotifications(ctx, bob.ID, models.NotificationEpistemic, 10, nil)
	require.NoError(t, err)
	assert.False(t, bobItems[0].IsRead, "other users' rows are untouched")

	// An empty id list is a no-op.
	require.NoError(t, svc.MarkRead(ctx, alice.ID, nil))
}
