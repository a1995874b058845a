package kit

import "context"

// callInfo is what an endpoint knows about who called it and how.
type callInfo struct {
	userID    string
	transport string
	requestID string
}

type callInfoKey struct{}

func infoFrom(ctx context.Context) callInfo {
	ci, _ := ctx.Value(callInfoKey{}).(callInfo)
	return ci
}

func withInfo(ctx context.Context, edit func(*callInfo)) context.Context {
	ci := infoFrom(ctx)
	edit(&ci)
	return context.WithValue(ctx, callInfoKey{}, ci)
}

// WithUserID records the authenticated user.
func WithUserID(ctx context.Context, id string) context.Context {
	return withInfo(ctx, func(ci *callInfo) { ci.userID = id })
}

// GetUserID returns the authenticated user, or "" for anonymous calls.
func GetUserID(ctx context.Context) string { return infoFrom(ctx).userID }

// WithTransport records the surface carrying the call: "http" or "mcp".
func WithTransport(ctx context.Context, t string) context.Context {
	return withInfo(ctx, func(ci *callInfo) { ci.transport = t })
}

// GetTransport returns the recorded transport, "http" when none was set.
func GetTransport(ctx context.Context) string {
	if t := infoFrom(ctx).transport; t != "" {
		return t
	}
	return "http"
}

// WithRequestID records the request ID used in logs and the audit trail.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withInfo(ctx, func(ci *callInfo) { ci.requestID = id })
}

// GetRequestID returns the recorded request ID.
func GetRequestID(ctx context.Context) string { return infoFrom(ctx).requestID }
