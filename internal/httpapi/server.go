package httpapi

import (
	"net/http"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/request"
)

// corsMiddleware mirrors the teacher's CORSWithCredentials: origin
// reflection with credentials, and an explicit allowance for the
// lowercase X-Requested-With preflight browsers send for SSO proxies
// sitting in front of a dashboard scraping /metrics.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}).Handler
}

// NewRouter builds the ambient HTTP surface: health checks and metrics
// only. Nothing named in §1's out-of-scope list (the web UI, auth, the
// core's own request/response handlers) is mounted here or by the serve
// command.
func NewRouter(requests *request.Store, sessions *importsession.Store, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if compressor, err := httpcompression.DefaultAdapter(); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to build compression adapter")
	} else {
		r.Use(compressor)
	}

	r.Use(corsMiddleware(allowedOrigins))

	health := NewHealthHandler()
	r.Route("/health", health.Routes)

	registry := NewRegistry(requests, sessions)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}
