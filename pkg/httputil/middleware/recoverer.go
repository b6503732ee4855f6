package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/httputil"
	"go.uber.org/zap"
)

// Recoverer turns a handler panic into the 500 envelope and logs the
// panic with its stack. http.ErrAbortHandler is re-panicked.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(p)
			}

			Logger(r.Context()).Error("handler panic",
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.String("panic", fmt.Sprint(p)),
				zap.Stack("stack"),
			)
			resp := controller.Fail(fmt.Errorf("panic: %v", p))
			resp.RequestID = httputil.RequestID(r)
			httputil.JSON(w, resp.Status, resp)
		}()
		next.ServeHTTP(w, r)
	})
}
