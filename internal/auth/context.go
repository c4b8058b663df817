package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	requesterContextKey contextKey = "requester_id"
	operatorContextKey  contextKey = "operator_verified"
)

// ContextWithRequester records the caller identity for the current command.
func ContextWithRequester(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, requesterContextKey, requesterID)
}

// RequesterFromContext returns the caller identity, or "" if none was set.
func RequesterFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requesterContextKey).(string)
	return id
}

// ContextWithOperator marks the request as carrying a verified operator key.
func ContextWithOperator(ctx context.Context) context.Context {
	return context.WithValue(ctx, operatorContextKey, true)
}

// IsOperator reports whether ContextWithOperator ran for this request.
func IsOperator(ctx context.Context) bool {
	ok, _ := ctx.Value(operatorContextKey).(bool)
	return ok
}
