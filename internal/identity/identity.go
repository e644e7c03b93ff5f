// Package identity resolves bearer tokens to users.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned when a token is missing, malformed, expired or
// unknown.
var ErrInvalidToken = errors.New("invalid token")

// User is the authenticated identity attached to a connection.
type User struct {
	ID          string
	DisplayName string
	AvatarURL   *string
	AvatarColor *string
}

// Resolver maps an opaque bearer token to a User. Implementations return
// ErrInvalidToken (possibly wrapped) for any token that does not authenticate.
type Resolver interface {
	Resolve(ctx context.Context, token string) (User, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, token string) (User, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, token string) (User, error) {
	return f(ctx, token)
}
