package marketauth

import "context"

type contextKey int

const clientIPKey contextKey = iota

// ContextWithClientIP attaches the caller's IP for throttling and audit.
// Transports that cannot supply one may skip it; throttles then no-op.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the IP attached with [ContextWithClientIP], or "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
