// Package auth carries the acting user through a context.Context. Rendering
// and permission checks read the user from the context they are given, so
// acting as another user is a matter of deriving a new context rather than
// swapping and restoring shared state.
package auth

import (
	"context"

	"github.com/telekom/issuemail/pkg/domain"
)

type userKey struct{}

// WithUser returns a context in which u is the acting user.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the acting user, or nil for anonymous contexts.
func UserFrom(ctx context.Context) *domain.User {
	if ctx == nil {
		return nil
	}
	u, _ := ctx.Value(userKey{}).(*domain.User)
	return u
}
