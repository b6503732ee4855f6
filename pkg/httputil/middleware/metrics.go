package middleware

import (
	"net/http"

	"github.com/joneldiablo/adba/pkg/metrics"
)

// Metrics counts responses by method and status in adba_http_requests_total.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewResponseRecorder(w)
		next.ServeHTTP(rec, r)
		metrics.ObserveRequest(r.Method, rec.StatusCode)
	})
}
