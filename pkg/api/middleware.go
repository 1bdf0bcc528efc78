package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/models"
)

// userContextKey is where requireAuth stores the authenticated user.
const userContextKey = "authenticated_user"

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// requestTimeout propagates a per-request deadline through the request context.
func (s *Server) requestTimeout() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.Server.RequestTimeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// blocklistGuard rejects requests from blocked client IPs.
func (s *Server) blocklistGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if s.blocklist.IsBlocked(c.RealIP()) {
				return newAPIError(http.StatusForbidden, KindForbidden, "access denied")
			}
			return next(c)
		}
	}
}

// requireAuth validates the bearer session token and loads the subject user
// into the request context.
func (s *Server) requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return newAPIError(http.StatusUnauthorized, KindUnauthorized, "missing bearer token")
			}

			claims, err := s.tokens.Validate(token)
			if err != nil {
				return newAPIError(http.StatusUnauthorized, KindUnauthorized, "invalid session token")
			}

			user, err := s.users.GetUser(c.Request().Context(), claims.Subject)
			if err != nil {
				// A valid token for a deleted user is still unauthorized.
				return newAPIError(http.StatusUnauthorized, KindUnauthorized, "unknown session subject")
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// currentUser returns the user stored by requireAuth. It panics when called
// from a route outside the authenticated group.
func currentUser(c *echo.Context) *models.User {
	user, ok := c.Get(userContextKey).(*models.User)
	if !ok {
		panic("currentUser called on an unauthenticated route")
	}
	return user
}

// internalSecretGuard hides the /internal/* routes behind the x-internal-secret
// header. Wrong or missing secrets get 404, never 401, so the routes do not
// advertise their existence.
func (s *Server) internalSecretGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			secret := s.cfg.Server.InternalSecret
			given := c.Request().Header.Get("x-internal-secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1 {
				return newAPIError(http.StatusNotFound, KindNotFound, "not found")
			}
			return next(c)
		}
	}
}
