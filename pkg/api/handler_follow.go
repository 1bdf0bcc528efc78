package api

import (
	"context"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/models"
)

// followHandler handles POST /api/v1/follows/:id.
func (s *Server) followHandler(c *echo.Context) error {
	if err := s.follows.Follow(c.Request().Context(), currentUser(c).ID, c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, nil)
}

// unfollowHandler handles DELETE /api/v1/follows/:id.
func (s *Server) unfollowHandler(c *echo.Context) error {
	if err := s.follows.Unfollow(c.Request().Context(), currentUser(c).ID, c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, nil)
}

// listFollowersHandler handles GET /api/v1/users/:id/followers.
func (s *Server) listFollowersHandler(c *echo.Context) error {
	return s.listFollowEdge(c, s.follows.ListFollowers)
}

// listFollowingHandler handles GET /api/v1/users/:id/following.
func (s *Server) listFollowingHandler(c *echo.Context) error {
	return s.listFollowEdge(c, s.follows.ListFollowing)
}

type followEdgeLister func(ctx context.Context, userID string, limit int, cursor *time.Time) ([]*models.User, *time.Time, bool, error)

func (s *Server) listFollowEdge(c *echo.Context, list followEdgeLister) error {
	cursor, err := queryTimeCursor(c, "cursor")
	if err != nil {
		return err
	}

	users, next, hasMore, err := list(c.Request().Context(), c.Param("id"), queryInt(c, "limit", 20), cursor)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, Page{Items: users, Cursor: timeCursorToken(next), HasMore: hasMore})
}
