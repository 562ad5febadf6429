// Package tenantctx carries resolved tenant (app) and mapped-user
// identity across context.Context, from the Ingestor/Tenant Resolver
// through every downstream handler.
package tenantctx

import "context"

type contextKey string

const (
	// AppIDKey is the context key for the resolved tenant (app) UUID.
	AppIDKey contextKey = "app_id"
	// UserIDKey is the context key for a resolved internal user-mapping UUID.
	UserIDKey contextKey = "user_id"
)

// WithAppID returns a new context with the tenant id set.
func WithAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, AppIDKey, appID)
}

// WithUserID returns a new context with the mapped user id set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// AppID extracts the resolved tenant id from ctx.
func AppID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(AppIDKey).(string)
	return v, ok
}

// UserID extracts the mapped user id from ctx.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(UserIDKey).(string)
	return v, ok
}
