package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/test/util"
)

func TestCreateUser(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewUserService(pool)

	var validErr *services.ValidationError

	_, err := svc.CreateUser(ctx, services.CreateUserInput{ID: "", Email: "a@example.com"})
	assert.ErrorAs(t, err, &validErr)

	_, err = svc.CreateUser(ctx, services.CreateUserInput{
		ID: strings.Repeat("x", 65), Email: "a@example.com",
	})
	assert.ErrorAs(t, err, &validErr)

	_, err = svc.CreateUser(ctx, services.CreateUserInput{ID: "alice", Email: ""})
	assert.ErrorAs(t, err, &validErr)

	_, err = svc.CreateUser(ctx, services.CreateUserInput{
		ID: "r2d2", Email: "r2@example.com", Kind: "droid",
	})
	assert.ErrorAs(t, err, &validErr)

	user, err := svc.CreateUser(ctx, services.CreateUserInput{
		ID: "  Alice  ", Email: "alice@example.com", DisplayName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID, "ids are trimmed and lower-cased")
	assert.Equal(t, models.UserKindHuman, user.Kind)

	// Creation is idempotent on id; the original row wins.
	again, err := svc.CreateUser(ctx, services.CreateUserInput{
		ID: "ALICE", Email: "other@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "alice@example.com", again.Email)
}

func TestGetUser(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewUserService(pool)

	util.CreateTestUser(t, pool, "alice")

	got, err := svc.GetUser(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ID)

	_, err = svc.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestGetSystemUser(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	svc := services.NewUserService(pool)

	_, err := svc.GetSystemUser(ctx)
	assert.ErrorIs(t, err, services.ErrNotFound)

	util.CreateTestUser(t, pool, "alice")
	system := util.CreateSystemUser(t, pool)

	got, err := svc.GetSystemUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, system.ID, got.ID)
	assert.True(t, got.IsSystem)
	assert.Equal(t, models.UserKindAgent, got.Kind)
}
