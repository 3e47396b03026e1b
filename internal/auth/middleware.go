package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const bearerScheme = "bearer "

// ErrIdentityNotFound is returned by loaders when no user matches the subject.
var ErrIdentityNotFound = errors.New("identity not found")

// IdentityLoader resolves the current credentials of a token subject.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, subject string) (*Identity, error)
}

// IdentityLoaderFunc adapts a function into an IdentityLoader.
type IdentityLoaderFunc func(ctx context.Context, subject string) (*Identity, error)

// LoadIdentity satisfies IdentityLoader.
func (f IdentityLoaderFunc) LoadIdentity(ctx context.Context, subject string) (*Identity, error) {
	return f(ctx, subject)
}

// AuthMiddleware binds the bearer token's identity to the request context.
// It never rejects a request: routes that need an identity are guarded by
// RequireAuthenticated.
type AuthMiddleware struct {
	tokens *TokenService
	loader IdentityLoader
	logger *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenService, loader IdentityLoader, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, loader: loader, logger: logger}
}

// Handle runs once per request. The bound identity is removed again when the
// downstream chain returns, including on panic.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	parent := c.UserContext()
	defer c.SetUserContext(parent)

	if identity := m.authenticate(c, parent); identity != nil {
		c.SetUserContext(WithIdentity(parent, identity))
	}
	return c.Next()
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx, ctx context.Context) *Identity {
	token, ok := BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return nil
	}

	subject, err := m.tokens.ExtractSubject(token)
	if err != nil {
		m.logger.Debug("bearer token rejected", zap.String("path", c.Path()), zap.Error(err))
		return nil
	}

	if existing, ok := IdentityFromContext(ctx); ok {
		m.logger.Debug("identity already bound", zap.String("subject", existing.Subject))
		return nil
	}

	identity, err := m.loader.LoadIdentity(ctx, subject)
	if err != nil || identity == nil {
		m.logger.Debug("identity lookup failed", zap.String("subject", subject), zap.Error(err))
		return nil
	}
	if err := ctx.Err(); err != nil {
		m.logger.Debug("request ended during identity lookup", zap.String("subject", subject), zap.Error(err))
		return nil
	}

	if !m.tokens.Validate(token, identity.Subject) {
		_, status := m.tokens.Verify(token)
		m.logger.Debug("bearer token failed validation",
			zap.String("subject", subject),
			zap.Stringer("status", status))
		return nil
	}
	return identity
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", false
	}
	return token, true
}
