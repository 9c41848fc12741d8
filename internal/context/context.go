package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ClientIPKey is the context key for the resolved client IP
	ClientIPKey ContextKey = "client_ip"
)

// WithClientIP stores the resolved client IP in ctx
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// ExtractClientIP extracts the client IP from the request context
func ExtractClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ClientIPKey).(string)
	return ip, ok && ip != ""
}
