// Package api exposes the run lifecycle over HTTP: submit, status, artifact,
// cancel and listing, plus health and prometheus endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/metrics"
	"github.com/sells-group/reel-cli/internal/pipeline"
	"github.com/sells-group/reel-cli/internal/store"
)

// Defaults applied to submissions that omit optional fields.
const (
	DefaultStyle    = "casual"
	DefaultDuration = 30
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Orchestrator *pipeline.Orchestrator
	Registry     store.Registry
	// Pipelines maps variant names to validated pipelines.
	Pipelines map[string]*pipeline.Pipeline
	Metrics   *metrics.Collector
	// CORSOrigins lists allowed origins. Empty allows none.
	CORSOrigins []string
	// StatsLookbackHours bounds GET /runs/stats. Zero means all runs.
	StatsLookbackHours int
	Now                func() time.Time
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.submit)
		r.Get("/", s.list)
		r.Get("/stats", s.stats)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.status)
			r.Get("/artifact", s.artifact)
			r.Post("/cancel", s.cancel)
		})
	})
	return r
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
