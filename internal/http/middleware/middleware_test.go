package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"venueboard/internal/logging"
)

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	h := CORS([]string{"https://board.example", "http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "https://board.example", wantOrigin: "https://board.example", wantStatus: http.StatusTeapot},
		{name: "case insensitive", method: http.MethodGet, origin: "HTTP://LOCALHOST:5173", wantOrigin: "HTTP://LOCALHOST:5173", wantStatus: http.StatusTeapot},
		{name: "unknown origin", method: http.MethodGet, origin: "https://evil.example", wantOrigin: "", wantStatus: http.StatusTeapot},
		{name: "preflight", method: http.MethodOptions, origin: "https://board.example", wantOrigin: "https://board.example", wantStatus: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/venues/x", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestRequestLoggingPropagatesRequestID(t *testing.T) {
	var seen string
	h := RequestLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-42" {
		t.Fatalf("context request id = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("response request id = %q", rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" || seen == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestRecoveryReturns500(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeRecorder) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method: method, route: route, status: status})
}

func TestMetricsUsesMuxPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/venues/{venueId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := &fakeRecorder{}
	h := Chain(mux, RequestLogging(), Metrics(rec))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/venues/bar-centro", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(rec.seen) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(rec.seen))
	}
	if rec.seen[0].route != "GET /api/v1/venues/{venueId}" || rec.seen[0].status != http.StatusNotFound {
		t.Fatalf("unexpected observation %+v", rec.seen[0])
	}
	if rec.seen[1].route != "unmatched" {
		t.Fatalf("unexpected observation %+v", rec.seen[1])
	}
}

func TestMetricsCountsRecoveredPanics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/venues/{venueId}/requests", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := &fakeRecorder{}
	h := Chain(mux, RequestLogging(), Recovery(), Metrics(rec))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/venues/bar-centro/requests", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if len(rec.seen) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(rec.seen))
	}
	got := rec.seen[0]
	if got.route != "POST /api/v1/venues/{venueId}/requests" || got.status != http.StatusInternalServerError {
		t.Fatalf("unexpected observation %+v", got)
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)

	if err := http.NewResponseController(rw).Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if !rec.Flushed {
		t.Fatalf("underlying recorder not flushed")
	}
}
