package util

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
)

// CreateTestUser inserts a user with a derived email.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool, id string) *models.User {
	t.Helper()
	user, err := services.NewUserService(pool).CreateUser(context.Background(), services.CreateUserInput{
		ID:    id,
		Email: fmt.Sprintf("%s@example.com", id),
	})
	require.NoError(t, err)
	return user
}

// CreateSystemUser inserts the designated system account.
func CreateSystemUser(t *testing.T, pool *pgxpool.Pool) *models.User {
	t.Helper()
	user, err := services.NewUserService(pool).CreateUser(context.Background(), services.CreateUserInput{
		ID:       "system",
		Email:    "system@example.com",
		Kind:     models.UserKindAgent,
		IsSystem: true,
	})
	require.NoError(t, err)
	return user
}

// CreateTestPost inserts a post authored by authorID.
func CreateTestPost(t *testing.T, pool *pgxpool.Pool, authorID, title, content string) *models.Post {
	t.Helper()
	post, err := services.NewContentService(pool).CreatePost(context.Background(), services.CreatePostInput{
		AuthorID: authorID,
		Title:    title,
		Content:  content,
	})
	require.NoError(t, err)
	return post
}
