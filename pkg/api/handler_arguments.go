package api

import (
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
)

// listADUsHandler handles GET /api/v1/arguments/posts/:id/adus.
func (s *Server) listADUsHandler(c *echo.Context) error {
	postID, err := parseIDParam(c)
	if err != nil {
		return err
	}
	adus, err := s.arguments.ListADUs(c.Request().Context(), postID)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, adus)
}

// getCanonicalClaimHandler handles GET /api/v1/arguments/claims/:id.
func (s *Server) getCanonicalClaimHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	claim, err := s.arguments.GetCanonicalClaim(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, claim)
}

// listADURelationsHandler handles GET /api/v1/arguments/claims/:id/related.
func (s *Server) listADURelationsHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	relations, err := s.arguments.ListRelations(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, relations)
}

// relatedPostsHandler handles
// GET /api/v1/arguments/canonical-claims/:id/related-posts.
func (s *Server) relatedPostsHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	var exclude *uuid.UUID
	if raw := c.QueryParam("exclude_source_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return newAPIError(http.StatusBadRequest, KindValidationFailed, "exclude_source_id must be a uuid")
		}
		exclude = &parsed
	}

	posts, err := s.arguments.RelatedPosts(c.Request().Context(), id, exclude, queryInt(c, "limit", 10))
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, posts)
}
