package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/models"
)

// listNotificationsHandler handles GET /api/v1/notifications. Category
// defaults to SOCIAL.
func (s *Server) listNotificationsHandler(c *echo.Context) error {
	category := models.NotificationCategory(c.QueryParam("category"))
	if category == "" {
		category = models.NotificationSocial
	}

	cursor, err := queryTimeCursor(c, "cursor")
	if err != nil {
		return err
	}

	notifications, next, hasMore, err := s.notifications.ListNotifications(
		c.Request().Context(), currentUser(c).ID, category, queryInt(c, "limit", 20), cursor)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, Page{Items: notifications, Cursor: timeCursorToken(next), HasMore: hasMore})
}

// markNotificationsReadHandler handles POST /api/v1/notifications/read. With
// ids it marks those epistemic notifications read; without, it stamps the
// social inbox as viewed.
func (s *Server) markNotificationsReadHandler(c *echo.Context) error {
	var req MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}

	ctx := c.Request().Context()
	userID := currentUser(c).ID

	if len(req.IDs) > 0 {
		if err := s.notifications.MarkRead(ctx, userID, req.IDs); err != nil {
			return mapServiceError(err)
		}
	} else {
		if err := s.notifications.MarkViewed(ctx, userID); err != nil {
			return mapServiceError(err)
		}
	}
	return respondOK(c, nil)
}
