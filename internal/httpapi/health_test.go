package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHealthHandlerRoutes(t *testing.T) {
	h := NewHealthHandler()
	r := chi.NewRouter()
	r.Route("/health", h.Routes)

	for _, tt := range []struct {
		path   string
		status string
	}{
		{"/health", "ok"},
		{"/health/readiness", "ready"},
		{"/health/liveness", "alive"},
	} {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, tt.status, resp["status"])
	}
}
