package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/models"
)

// voteHandler handles POST /api/v1/votes. Re-casting the same vote is a
// no-op; flipping direction updates the row in place.
func (s *Server) voteHandler(c *echo.Context) error {
	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}

	vote, err := s.votes.Vote(c.Request().Context(), currentUser(c).ID,
		models.ContentType(req.TargetType), req.TargetID, req.Value)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, vote)
}

// unvoteHandler handles DELETE /api/v1/votes.
func (s *Server) unvoteHandler(c *echo.Context) error {
	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}

	err := s.votes.Unvote(c.Request().Context(), currentUser(c).ID,
		models.ContentType(req.TargetType), req.TargetID)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, nil)
}
