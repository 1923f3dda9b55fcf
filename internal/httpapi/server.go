package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"venueboard/internal/app/board"
	"venueboard/internal/auth"
	"venueboard/internal/catalog"
	"venueboard/internal/changefeed"
	"venueboard/internal/http/middleware"
	"venueboard/internal/logging"
	"venueboard/internal/store"
)

// CatalogService provides track search and recommendations. Failed lookups
// yield an empty list; only a seeded recommendation reports a failed token
// exchange.
type CatalogService interface {
	SearchTracks(ctx context.Context, query string) []catalog.Track
	Recommendations(ctx context.Context, query string) []catalog.Track
	RecommendationsByTrack(ctx context.Context, seed *catalog.Track) ([]catalog.Track, error)
}

// StaffAuth exchanges venue PINs for staff sessions and checks them.
type StaffAuth interface {
	Login(ctx context.Context, venueID, pin string) (auth.Session, error)
	Authorize(token, venueID string) error
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

const defaultHeartbeat = 25 * time.Second

// Server wires HTTP handlers to the underlying services.
type Server struct {
	board   board.Service
	catalog CatalogService
	staff   StaffAuth

	allowedOrigins []string
	recorder       middleware.HTTPRecorder
	metrics        http.Handler
	checks         map[string]ReadinessCheck
	heartbeat      time.Duration
	logger         zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithMetrics records per-route request metrics and serves h on /metrics.
func WithMetrics(rec middleware.HTTPRecorder, h http.Handler) Option {
	return func(s *Server) {
		s.recorder = rec
		s.metrics = h
	}
}

// WithReadinessCheck adds a named dependency check to /health/ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// WithHeartbeat sets the comment interval on event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// New configures a Server with the given services.
func New(boardSvc board.Service, catalogSvc CatalogService, staff StaffAuth, opts ...Option) *Server {
	s := &Server{
		board:     boardSvc,
		catalog:   catalogSvc,
		staff:     staff,
		checks:    make(map[string]ReadinessCheck),
		heartbeat: defaultHeartbeat,
		logger:    logging.Component("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes exposes the HTTP handlers wrapped in the request middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /health/ready", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Venue routes
	mux.HandleFunc("GET /api/v1/venues/{venueId}", s.handleGetVenue)
	mux.HandleFunc("GET /api/v1/venues/{venueId}/events", s.handleVenueEvents)
	mux.HandleFunc("PUT /api/v1/venues/{venueId}/settings", s.requireStaff(s.handleUpdateSettings))
	mux.HandleFunc("POST /api/v1/venues/{venueId}/staff/login", s.handleStaffLogin)

	// Request routes
	mux.HandleFunc("POST /api/v1/venues/{venueId}/requests", s.handleAddRequest)
	mux.HandleFunc("GET /api/v1/venues/{venueId}/requests/events", s.requireStaff(s.handleRequestEvents))
	mux.HandleFunc("GET /api/v1/venues/{venueId}/requests/history", s.requireStaff(s.handleHistory))
	mux.HandleFunc("POST /api/v1/venues/{venueId}/requests/{requestId}/played", s.requireStaff(s.handleMarkPlayed))

	// Catalog routes
	mux.HandleFunc("GET /api/v1/catalog/search", s.handleCatalogSearch)
	mux.HandleFunc("GET /api/v1/catalog/recommendations", s.handleRecommendations)
	mux.HandleFunc("POST /api/v1/catalog/recommendations", s.handleRecommendationsByTrack)

	mws := []func(http.Handler) http.Handler{
		middleware.RequestLogging(),
		middleware.Recovery(),
		middleware.CORS(s.allowedOrigins),
	}
	if s.recorder != nil {
		mws = append(mws, middleware.Metrics(s.recorder))
	}
	return middleware.Chain(mux, mws...)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}{Status: "unavailable", Checks: failures})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

// requireStaff admits requests carrying a session for the venue in the path.
// Event streams cannot set headers from a browser, so the token may also
// arrive as the token query parameter.
func (s *Server) requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		if err := s.staff.Authorize(token, r.PathValue("venueId")); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrForbidden) {
				status = http.StatusForbidden
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		next(w, r)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrVenueNotFound), errors.Is(err, store.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidVenue), errors.Is(err, store.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidPIN), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrTokenExchange):
		return http.StatusBadGateway
	case errors.Is(err, changefeed.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
