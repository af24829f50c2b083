package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/topup/core/logger"
)

// requestLogger writes one http request.done line per request and carries
// the chi request id as rid.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRID(r.Context(), middleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case code >= 500:
				level = slog.LevelError
			case r.URL.Path == "/-/live" || r.URL.Path == "/-/ready":
				level = slog.LevelDebug
			}
			logger.Event(ctx, logger.CompHTTP, level, "request.done",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("http_code", code),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("took", logger.Took(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
