package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(target, body string) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestBlockIPHandler(t *testing.T) {
	t.Run("default ttl", func(t *testing.T) {
		s := testServer()
		c, rec := postJSON("/internal/block-ip", `{"ip":"203.0.113.9"}`)
		require.NoError(t, s.blockIPHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, s.blocklist.IsBlocked("203.0.113.9"))
	})

	t.Run("explicit ttl", func(t *testing.T) {
		s := testServer()
		c, _ := postJSON("/internal/block-ip", `{"ip":"203.0.113.9","ttlSeconds":60}`)
		require.NoError(t, s.blockIPHandler(c))
		assert.True(t, s.blocklist.IsBlocked("203.0.113.9"))
	})

	for name, body := range map[string]string{
		"invalid ip":     `{"ip":"not-an-ip"}`,
		"zero ttl":       `{"ip":"203.0.113.9","ttlSeconds":0}`,
		"oversized ttl":  `{"ip":"203.0.113.9","ttlSeconds":99999999}`,
		"malformed body": `{"ip":`,
	} {
		t.Run(name, func(t *testing.T) {
			s := testServer()
			c, _ := postJSON("/internal/block-ip", body)
			err := s.blockIPHandler(c)
			var apiErr *apiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.False(t, s.blocklist.IsBlocked("203.0.113.9"))
		})
	}
}

func TestBlockedIPsHandler(t *testing.T) {
	s := testServer()

	c, rec := newTestContext(http.MethodGet, "/internal/blocked-ips")
	require.NoError(t, s.blockedIPsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ips":[]}`, rec.Body.String())

	require.True(t, s.blocklist.Block("10.0.0.2", 60))
	require.True(t, s.blocklist.Block("10.0.0.1", 60))

	c, rec = newTestContext(http.MethodGet, "/internal/blocked-ips")
	require.NoError(t, s.blockedIPsHandler(c))

	var resp struct {
		IPs []string `json:"ips"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, resp.IPs)
}

func TestSearchHandlerValidation(t *testing.T) {
	s := testServer()

	c, _ := newTestContext(http.MethodGet, "/api/v1/search")
	err := s.searchHandler(c)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	c, _ = newTestContext(http.MethodGet, "/api/v1/search?q=carbon&type=keyword")
	err = s.searchHandler(c)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}
