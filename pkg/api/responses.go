package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// Envelope is the standard response shape.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Page is the standard cursor-paginated collection shape.
type Page struct {
	Items   any    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"hasMore"`
}

func respond(c *echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

func respondCreated(c *echo.Context, data any) error {
	return respond(c, http.StatusCreated, data)
}

func respondOK(c *echo.Context, data any) error {
	return respond(c, http.StatusOK, data)
}
