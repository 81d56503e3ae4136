package monitoring

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Middleware records request counts and durations. Requests are labelled with
// the matched chi route pattern so path parameters do not explode the label
// space. The metrics endpoint itself is skipped.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.ActiveConnections.Inc()
		defer m.ActiveConnections.Dec()

		start := time.Now()
		next.ServeHTTP(w, r)

		// The pattern is only known once chi has routed the request.
		path := routePattern(r)
		m.HttpRequestsTotal.WithLabelValues(path).Inc()
		m.HttpRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
