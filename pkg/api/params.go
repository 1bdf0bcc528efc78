package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
)

// queryInt parses an optional integer query parameter, falling back to def on
// absence or garbage. Range policy belongs to the service layer.
func queryInt(c *echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// queryTimeCursor parses an optional RFC3339Nano cursor query parameter.
func queryTimeCursor(c *echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed cursor")
	}
	return &ts, nil
}

// timeCursorToken renders a page cursor for created_at/updated_at keysets.
func timeCursorToken(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}
