package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// serviceTokenHandler handles POST /api/v1/auth/service: exchanges a verified
// service-account identity token for a session token.
func (s *Server) serviceTokenHandler(c *echo.Context) error {
	var req ServiceTokenRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}
	if req.IdentityToken == "" {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "identity_token is required")
	}

	token, err := s.authService.Exchange(c.Request().Context(), req.IdentityToken)
	if err != nil {
		return mapServiceError(err)
	}

	return respondOK(c, map[string]any{
		"session_token": token,
		"token_type":    "Bearer",
		"expires_in":    int(s.cfg.Auth.SessionTTL.Seconds()),
	})
}
