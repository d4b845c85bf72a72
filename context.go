package portalauth

import "context"

type userIDContextKey struct{}
type clientIPContextKey struct{}

// WithUserID attaches the authenticated user id to ctx. The middleware sets
// it once per request from the verified access token; every operation that
// needs a caller identity reads it from here rather than from any ambient
// request state.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the user id set by [WithUserID], or "" when the
// request carries no authenticated session.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userID, _ := ctx.Value(userIDContextKey{}).(string)
	return userID
}

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// audit events only.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
