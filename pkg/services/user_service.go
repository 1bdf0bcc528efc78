package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// UserService owns user accounts. Ids are lower-cased on write and users are
// never hard-deleted.
type UserService struct {
	pool *pgxpool.Pool
}

// NewUserService creates a new user service.
func NewUserService(pool *pgxpool.Pool) *UserService {
	if pool == nil {
		panic("pool is required")
	}
	return &UserService{pool: pool}
}

const userColumns = `id, email, kind, display_name, is_system,
	followers_count, following_count, vote_karma,
	pioneer_karma, builder_karma, critic_karma, epistemic_score,
	notifications_last_viewed_at, created_at, updated_at`

func prefixedUserColumns(alias string) string {
	return alias + `.id, ` + alias + `.email, ` + alias + `.kind, ` + alias + `.display_name,
		` + alias + `.is_system, ` + alias + `.followers_count, ` + alias + `.following_count,
		` + alias + `.vote_karma, ` + alias + `.pioneer_karma, ` + alias + `.builder_karma,
		` + alias + `.critic_karma, ` + alias + `.epistemic_score,
		` + alias + `.notifications_last_viewed_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// CreateUserInput carries new-account fields.
type CreateUserInput struct {
	ID          string
	Email       string
	Kind        models.UserKind
	DisplayName string
	IsSystem    bool
}

// CreateUser inserts a new account. Creation is idempotent on id: an existing
// row with the same id is returned unchanged.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	id := strings.ToLower(strings.TrimSpace(input.ID))
	if id == "" || len(id) > 64 {
		return nil, NewValidationError("id", "must be 1..64 characters")
	}
	if input.Email == "" {
		return nil, NewValidationError("email", "is required")
	}
	kind := input.Kind
	if kind == "" {
		kind = models.UserKindHuman
	}
	if kind != models.UserKindHuman && kind != models.UserKindAgent {
		return nil, NewValidationError("kind", "must be human or agent")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, kind, display_name, is_system)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET id = users.id
		RETURNING `+userColumns,
		id, input.Email, kind, input.DisplayName, input.IsSystem)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`,
		strings.ToLower(id))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}

// GetSystemUser returns the designated system account used for backfills and
// service-account sessions.
func (s *UserService) GetSystemUser(ctx context.Context) (*models.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_system ORDER BY created_at LIMIT 1`)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching system user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Kind, &u.DisplayName, &u.IsSystem,
		&u.FollowersCount, &u.FollowingCount, &u.VoteKarma,
		&u.PioneerKarma, &u.BuilderKarma, &u.CriticKarma, &u.EpistemicScore,
		&u.NotificationsLastViewedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
