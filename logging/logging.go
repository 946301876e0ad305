// Package logging builds the service's zerolog logger and HTTP request logging.
package logging

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/warp/waterfall-engine/config"
)

// New creates the root logger. JSON output when cfg.JSON is set, otherwise a
// human-readable console writer. Unknown levels fall back to info.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "waterfall-engine").Logger()
}

// Component derives a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// RequestLogger is chi middleware that logs one line per request.
// 5xx responses log at error, 4xx at warn, everything else at info.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = Component(logger, "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				var event *zerolog.Event
				switch {
				case status >= 500:
					event = logger.Error()
				case status >= 400:
					event = logger.Warn()
				default:
					event = logger.Info()
				}

				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("request handled")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
