// ABOUTME: HTTP server struct, constructor, and handler wiring for pulsewatch.
// ABOUTME: Mounts the versioned read API, ping ingestion, /healthz and /metrics.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store       *store.Store
	cfg         *config.Config
	rateLimiter *ipRateLimiter
}

// NewServer creates a Server.
func NewServer(s *store.Store, cfg *config.Config) *Server {
	evictTTL := cfg.RateLimitEvictTTL
	if evictTTL == 0 {
		evictTTL = 15 * time.Minute
	}
	// Ping ingestion: 60 per minute per IP, burst of 10.
	rl := newIPRateLimiter(rate.Limit(1), 10, evictTTL)
	return &Server{
		store:       s,
		cfg:         cfg,
		rateLimiter: rl,
	}
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	var db *pgxpool.Pool
	if srv.store != nil {
		db = srv.store.Pool()
	}
	r := chi.NewRouter()

	// ── Security headers ──────────────────────────────────────────────────────
	// Must be first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	// ── Standard chi middleware ───────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit — protect against OOM from large request bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", healthzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	// ── Ping ingestion (unauthenticated, keyed by check code) ─────────────────
	r.Route("/ping/{code}", func(r chi.Router) {
		r.Use(srv.pingRateLimit())
		r.HandleFunc("/", srv.pingHandler(store.PingSuccess))
		r.HandleFunc("/fail", srv.pingHandler(store.PingFail))
		r.HandleFunc("/start", srv.pingHandler(store.PingStart))
		r.HandleFunc("/log", srv.pingHandler(store.PingLog))
	})

	// ── Versioned read API ────────────────────────────────────────────────────
	// The listing surface is served identically under v1, v2 and v3 — clients
	// pinned to an old prefix keep working.
	apiRouter := srv.apiRouter()
	r.Mount("/api/v1", apiRouter)
	r.Mount("/api/v2", apiRouter)
	r.Mount("/api/v3", apiRouter)

	return r
}

// apiRouter builds the project-scoped API surface shared by all versions.
func (srv *Server) apiRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(corsAllowAll)

	r.With(srv.RequireAPIKey(true)).Get("/jobs", srv.listJobsHandler)
	r.With(srv.RequireAPIKey(true)).Get("/checks", srv.listChecksHandler)
	r.With(srv.RequireAPIKey(false)).Post("/checks", srv.createCheckHandler)

	return r
}

// corsAllowAll marks API responses as cross-origin readable and answers
// preflight requests. The API is read-mostly and API-key-authenticated, so a
// wildcard origin is safe.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Headers", "X-Api-Key, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// healthResponse is the JSON body for /healthz.
type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// healthzHandler returns 200 {"status":"ok"} when the DB is reachable,
// or 503 {"status":"degraded","db":"unavailable"} when it is not.
func healthzHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		statusCode := http.StatusOK

		if db == nil {
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		} else if err := db.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "healthz: db ping failed", "error", err)
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, resp)
	}
}
