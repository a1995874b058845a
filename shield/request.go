package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/radicalgizmos-matt/li-rad-libs/idgen"
	"github.com/radicalgizmos-matt/li-rad-libs/kit"
)

var requestIDs = idgen.Prefixed("req_", idgen.Default)

// RequestID tags each request with an ID, echoed in X-Request-ID, and
// attaches a logger carrying it.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestIDs()
			w.Header().Set("X-Request-ID", id)

			l := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			l.Debug("shield: request", "remote_addr", r.RemoteAddr)

			ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")
			ctx = context.WithValue(ctx, loggerKey, l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
