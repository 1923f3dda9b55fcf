package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	ObserveHTTPRequest(method, route string, status int, d time.Duration)
}

// Metrics records request counts and latency by mux pattern. It must wrap the
// ServeMux directly: the mux stores the matched pattern on the request it is
// handed, and Metrics reads it back after the handler returns. A panicking
// handler is recorded as a 500 before the panic reaches Recovery.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)
			panicked := true

			defer func() {
				status := rw.statusCode
				if panicked {
					status = http.StatusInternalServerError
				}
				route := r.Pattern
				if route == "" {
					route = "unmatched"
				}
				rec.ObserveHTTPRequest(r.Method, route, status, time.Since(start))
			}()

			next.ServeHTTP(rw, r)
			panicked = false
		})
	}
}

// Chain applies middlewares so the first one listed is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
