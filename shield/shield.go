// Package shield is the HTTP middleware stack in front of the options
// surface: security headers, body limits, request IDs with a per-request
// logger, and one-shot flash messages.
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const (
	loggerKey contextKey = "shield_logger"
	flashKey  contextKey = "shield_flash"
)

// Stack returns the middleware for the options surface, outermost first.
func Stack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(256 << 10),
		RequestID(logger),
		Flash,
	}
}

// HeadToGet serves HEAD requests with the GET handlers.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBody caps request bodies at maxBytes.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetLogger returns the per-request logger, or slog.Default outside a
// request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
