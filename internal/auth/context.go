package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// AuthorityUser is granted to every registered account.
const AuthorityUser = "USER"

// Identity is the authenticated caller bound to a single request.
type Identity struct {
	// Subject is the token subject, the account's username.
	Subject     string
	UserID      string
	Authorities []string
}

// HasAuthority reports whether the identity carries authority.
func (i *Identity) HasAuthority(authority string) bool {
	if i == nil {
		return false
	}
	for _, a := range i.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

type contextKey struct {
	name string
}

var identityCtxKey = &contextKey{"identity"}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext returns the identity bound to ctx, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityCtxKey).(*Identity)
	return identity, ok && identity != nil
}

// CurrentIdentity returns the identity bound to the request being handled.
func CurrentIdentity(c *fiber.Ctx) (*Identity, bool) {
	return IdentityFromContext(c.UserContext())
}
