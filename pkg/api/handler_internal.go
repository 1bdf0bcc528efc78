package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// defaultBlockTTLSeconds applies when block-ip requests omit ttlSeconds.
const defaultBlockTTLSeconds = 86400

// blockIPHandler handles POST /internal/block-ip.
func (s *Server) blockIPHandler(c *echo.Context) error {
	var req BlockIPRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}

	ttl := defaultBlockTTLSeconds
	if req.TTLSeconds != nil {
		ttl = *req.TTLSeconds
	}

	if !s.blocklist.Block(req.IP, ttl) {
		return newAPIError(http.StatusBadRequest, KindValidationFailed,
			"ip must be a valid address and ttlSeconds within bounds")
	}

	s.logger.Info("Blocked IP", "ip", req.IP, "ttl_seconds", ttl)
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// blockedIPsHandler handles GET /internal/blocked-ips.
func (s *Server) blockedIPsHandler(c *echo.Context) error {
	ips := s.blocklist.List()
	if ips == nil {
		ips = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"ips": ips})
}
