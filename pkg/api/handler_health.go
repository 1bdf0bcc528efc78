package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/database"
	"github.com/agora-discourse/agora/pkg/version"
)

// healthHandler handles GET /health: database connectivity plus worker pool
// status.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbErr := database.Health(ctx, s.db)
	workerHealth := s.workers.Health()

	status := http.StatusOK
	overall := "healthy"
	if dbErr != nil || !workerHealth.IsHealthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.JSON(status, map[string]any{
		"status":   overall,
		"version":  version.Full(),
		"database": dbHealth,
		"workers":  workerHealth,
	})
}
