package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

func TestFollowLifecycle(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	follows := services.NewFollowService(pool)
	users := services.NewUserService(pool)

	alice := util.CreateTestUser(t, pool, "alice")
	bob := util.CreateTestUser(t, pool, "bob")

	err := follows.Follow(ctx, alice.ID, alice.ID)
	var validErr *services.ValidationError
	assert.ErrorAs(t, err, &validErr)

	err = follows.Follow(ctx, alice.ID, "nobody")
	assert.ErrorIs(t, err, services.ErrNotFound)

	require.NoError(t, follows.Follow(ctx, alice.ID, bob.ID))
	// Repeat follow must not double-count.
	require.NoError(t, follows.Follow(ctx, alice.ID, bob.ID))

	gotAlice, err := users.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	gotBob, err := users.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotAlice.FollowingCount)
	assert.Equal(t, 1, gotBob.FollowersCount)

	require.NoError(t, follows.Unfollow(ctx, alice.ID, bob.ID))
	err = follows.Unfollow(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	gotBob, err = users.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotBob.FollowersCount)
}

func TestListFollowersPagination(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	follows := services.NewFollowService(pool)

	target := util.CreateTestUser(t, pool, "target")
	for i := 0; i < 5; i++ {
		fan := util.CreateTestUser(t, pool, fmt.Sprintf("fan%d", i))
		require.NoError(t, follows.Follow(ctx, fan.ID, target.ID))
	}

	page1, cursor, hasMore, err := follows.ListFollowers(ctx, target.ID, 3, nil)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.NotNil(t, cursor)
	require.Len(t, page1, 3)

	page2, _, hasMore, err := follows.ListFollowers(ctx, target.ID, 3, cursor)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page2, 2)

	// No user appears on both pages.
	seen := make(map[string]bool)
	for _, u := range append(page1, page2...) {
		assert.False(t, seen[u.ID], "user %s appeared twice", u.ID)
		seen[u.ID] = true
	}

	following, _, _, err := follows.ListFollowing(ctx, "fan0", 10, nil)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, target.ID, following[0].ID)
}
