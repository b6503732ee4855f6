package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/joneldiablo/adba/pkg/httputil"
)

const RequestIDHeader = "X-Request-Id"

// RequestID stores a request id in the context and echoes it in the
// X-Request-Id response header. An id already in the context or sent by the
// client is kept; otherwise a new UUID is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := httputil.RequestID(r)
		if reqID == "" {
			reqID = r.Header.Get(RequestIDHeader)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
