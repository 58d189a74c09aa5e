package middleware

import "context"

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxUserName contextKey = "user_name"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// UserNameFromContext returns the display name carried by the token, if any.
func UserNameFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserName)
}

// WithIdentity injects the caller identity into the context. Auth uses it
// after verifying a token; tests use it to skip token minting.
func WithIdentity(ctx context.Context, userID, role, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if name != "" {
		ctx = context.WithValue(ctx, ctxUserName, name)
	}
	return ctx
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
