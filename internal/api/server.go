// Package api provides REST API endpoints for flights, telegrams and regions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"shr_parser/internal/ingest"
	"shr_parser/internal/logging"
	"shr_parser/internal/metrics"
	"shr_parser/internal/pipeline"
	"shr_parser/internal/sheet"
	"shr_parser/internal/storage"
)

// DefaultMaxUploadBytes limits multipart uploads when Config leaves it unset.
const DefaultMaxUploadBytes = 64 << 20

// Server provides REST API access to the flight pipeline.
type Server struct {
	svc         *pipeline.Service
	store       storage.Store
	metrics     *metrics.Registry
	log         *zap.SugaredLogger
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
	maxUpload   int64
	now         func() time.Time
}

// Config holds configuration for the API server.
type Config struct {
	Port           int
	AuthEnabled    bool
	APIKeys        []string // List of valid API keys.
	MaxUploadBytes int64
}

// NewServer creates a new API server.
func NewServer(svc *pipeline.Service, store storage.Store, m *metrics.Registry, log *zap.SugaredLogger, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	return &Server{
		svc:         svc,
		store:       store,
		metrics:     m,
		log:         logging.OrNop(log),
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		maxUpload:   maxUpload,
		now:         time.Now,
	}
}

// Run starts the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infow("Flights API starting", "addr", srv.Addr, "auth", s.authEnabled)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			// Optional authentication.
			if s.authEnabled {
				r.Use(s.authMiddleware)
			}

			r.Post("/telegrams/upload", s.handleUploadTelegrams)
			r.Get("/telegrams/status", s.handleTelegramStatus)

			r.Get("/flights", s.handleListFlights)
			r.Get("/flights/stats", s.handleFlightStats)
			r.Get("/flights/drone-types", s.handleDroneTypes)
			r.Get("/flights/by-drone-type", s.handleCountByDroneType)
			r.Get("/flights/{id}", s.handleGetFlight)
			r.Delete("/flights/{id}", s.handleDeleteFlight)

			r.Get("/regions", s.handleListRegions)
			r.Get("/regions/top", s.handleTopRegions)
			r.Get("/regions/resolve", s.handleResolve)
			r.Post("/regions/geojson", s.handleUploadGeoJSON)
			r.Post("/regions/shapefile", s.handleUploadShapefile)
			r.Post("/regions/reload", s.handleReloadRegions)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request metrics and logs each request.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		// The route pattern is only known once chi has routed the request.
		pattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := wrapped.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		s.metrics.ObserveRequest(pattern, r.Method, status, duration.Seconds())
		s.log.Infow("HTTP request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"endpoint", pattern,
			"status_code", status,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps domain errors to HTTP status codes.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ingest.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, sheet.ErrUnsupportedFormat),
		errors.Is(err, storage.ErrInvalidSort):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorw("Request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
