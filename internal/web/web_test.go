package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awical/internal/status"
)

func TestHealth(t *testing.T) {
	s := NewServer("bucket", "/data", nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())
}

func TestStatus(t *testing.T) {
	reporter := status.NewReporter(nil)
	reporter.Update("Added 3 item(s)")
	s := NewServer("aw-importer-ical_host", "/data", reporter)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "aw-importer-ical_host", resp.Bucket)
	assert.Equal(t, "/data", resp.DataPath)
	assert.Equal(t, "Added 3 item(s)", resp.Last)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "Added 3 item(s)", resp.History[0].Message)
}

func TestStatusRejectsPost(t *testing.T) {
	s := NewServer("bucket", "/data", nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetrics(t *testing.T) {
	s := NewServer("bucket", "/data", nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
