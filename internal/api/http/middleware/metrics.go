package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestRecorder records completed request latencies.
type RequestRecorder interface {
	ObserveRequest(method, route string, seconds float64)
}

// Metrics observes the duration of every request under its chi route pattern,
// keeping label cardinality bounded.
func Metrics(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			rec.ObserveRequest(r.Method, route, time.Since(start).Seconds())
		})
	}
}
