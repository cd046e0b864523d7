package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{ roster []Roster }

func (s stubSource) Roster() []Roster { return s.roster }

func TestHealthzReportsOK(t *testing.T) {
	router := NewRouter(stubSource{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
}

func TestStatusReturnsRosterJSON(t *testing.T) {
	source := stubSource{roster: []Roster{{ClientID: 1, Username: "Alice"}}}
	router := NewRouter(source)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	var got []Roster
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	assert.Equal(t, source.roster, got)
}

func TestMetricsEndpointIsServed(t *testing.T) {
	router := NewRouter(stubSource{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
}
