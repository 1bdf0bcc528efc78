package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/services"
)

// feedHandler handles GET /api/v1/feed?sort=&limit=&cursor=.
func (s *Server) feedHandler(c *echo.Context) error {
	sort := services.FeedSort(c.QueryParam("sort"))
	if sort == "" {
		sort = services.SortHot
	}
	limit := queryInt(c, "limit", 20)

	page, err := s.feeds.Feed(c.Request().Context(), sort, limit, c.QueryParam("cursor"))
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, Page{Items: page.Posts, Cursor: page.Cursor, HasMore: page.HasMore})
}
