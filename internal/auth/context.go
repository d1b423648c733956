package auth

import (
	"context"

	"qmark.app/internal/store"
)

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to the context.
func ContextWithUser(ctx context.Context, user store.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, &user)
}

// UserFromContext extracts the authenticated user from the context.
func UserFromContext(ctx context.Context) (store.User, bool) {
	if ctx == nil {
		return store.User{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(*store.User)
	if !ok || v == nil {
		return store.User{}, false
	}
	return *v, true
}
