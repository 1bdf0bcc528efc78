package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// searchHandler handles GET /api/v1/search?q=&type=semantic&limit=.
func (s *Server) searchHandler(c *echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "q is required")
	}

	searchType := c.QueryParam("type")
	if searchType != "" && searchType != "semantic" {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "unknown search type")
	}

	results, err := s.search.Search(c.Request().Context(), query, queryInt(c, "limit", 20))
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, results)
}
