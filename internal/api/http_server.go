// Package api exposes a small operational HTTP surface: health probes,
// Prometheus metrics and read-only schedule queries for the branch site.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"lessonbot/internal/config"
	"lessonbot/internal/database"
	"lessonbot/internal/domain"
	"lessonbot/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type OpsServer struct {
	cfg      config.OpsConfig
	db       *database.DB
	redis    *redis.Client
	bookings domain.BookingService
	server   *http.Server
	logger   *zerolog.Logger
	limiters sync.Map // map[string]*rate.Limiter
}

func NewOpsServer(cfg config.OpsConfig, db *database.DB, redisClient *redis.Client, bookings domain.BookingService, logger *zerolog.Logger) *OpsServer {
	srv := &OpsServer{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		bookings: bookings,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/readyz", srv.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/availability", srv.handleAvailability)
	mux.HandleFunc("/api/v1/closed-dates", srv.handleClosedDates)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.loggingMiddleware(srv.rateLimitMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *OpsServer) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("Ops HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *OpsServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the configured handler chain. Used by tests.
func (s *OpsServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady verifies the storage dependencies. Redis is optional: the bot
// degrades to in-memory state without it, so only SQLite gates readiness.
func (s *OpsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	resp := map[string]string{"status": "ready", "redis": "disabled"}
	if s.redis != nil {
		resp["redis"] = "ok"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			resp["redis"] = "down"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *OpsServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	hhmm := strings.TrimSpace(r.URL.Query().Get("time"))
	if date == "" || hhmm == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	free, err := s.bookings.IsSlotFree(r.Context(), date, hhmm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date or time; expected YYYY-MM-DD and HH:MM")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":      date,
		"time":      hhmm,
		"available": free,
	})
}

func (s *OpsServer) handleClosedDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dates, err := s.bookings.ListClosedDates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list closed dates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed_dates": dates})
}

func (s *OpsServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// rateLimitMiddleware throttles per remote host. Probes and metrics scrapes
// are exempt so a busy site cannot starve monitoring.
func (s *OpsServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !s.getLimiter(clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *OpsServer) getLimiter(key string) *rate.Limiter {
	if v, ok := s.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(10), 20)
	actual, loaded := s.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
