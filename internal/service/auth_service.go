package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/task-manager/internal/auth"
	"github.com/spec-kit/task-manager/internal/config"
	"github.com/spec-kit/task-manager/internal/domain"
	"github.com/spec-kit/task-manager/internal/repository"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

const (
	maxUsernameLength = 100
	maxEmailLength    = 255
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
)

// ErrInvalidCredentials is returned for unknown users, disabled accounts and wrong passwords alike.
var ErrInvalidCredentials = apperrors.NewUnauthorized("invalid username or password")

// AuthResult is the outcome of a successful register or login.
type AuthResult struct {
	User  *domain.User
	Token auth.IssuedToken
}

// AuthService coordinates registration, login and identity lookup.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenService
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, tokens *auth.TokenService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// Tokens exposes the token service for middleware wiring.
func (s *AuthService) Tokens() *auth.TokenService {
	return s.tokens
}

// Register creates an account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	details := map[string]any{}
	switch {
	case username == "":
		details["username"] = "username is required"
	case utf8.RuneCountInString(username) > maxUsernameLength:
		details["username"] = "username must be at most 100 characters"
	}
	if email == "" {
		details["email"] = "email is required"
	} else if _, err := mail.ParseAddress(email); err != nil || len(email) > maxEmailLength {
		details["email"] = "email must be a valid address"
	}
	switch {
	case strings.TrimSpace(password) == "":
		details["password"] = "password is required"
	case len(password) > maxPasswordBytes:
		details["password"] = "password must be at most 72 bytes"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid registration request", details)
	}

	if exists, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, apperrors.NewInternalError(err)
	} else if exists {
		return nil, apperrors.NewConflict("username already exists", map[string]any{"field": "username"})
	}
	if exists, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, apperrors.NewInternalError(err)
	} else if exists {
		return nil, apperrors.NewConflict("email already exists", map[string]any{"field": "email"})
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Enabled:      true,
		Authorities:  []string{domain.DefaultAuthority},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("username or email already exists", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, issueError(err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and signs a fresh token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, apperrors.NewValidationError("username and password are required", nil)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !user.Enabled || !auth.PasswordMatches(user.PasswordHash, password) {
		s.logger.Debug("login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, issueError(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// LoadIdentity resolves a token subject to the account's current identity.
// Unknown and disabled accounts report auth.ErrIdentityNotFound.
func (s *AuthService) LoadIdentity(ctx context.Context, subject string) (*auth.Identity, error) {
	user, err := s.users.GetByUsername(ctx, subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, auth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, auth.ErrIdentityNotFound
	}

	authorities := user.Authorities
	if len(authorities) == 0 {
		authorities = []string{domain.DefaultAuthority}
	}
	return &auth.Identity{
		Subject:     user.Username,
		UserID:      user.ID,
		Authorities: append([]string(nil), authorities...),
	}, nil
}

// CurrentUser returns the account behind identity.
func (s *AuthService) CurrentUser(ctx context.Context, identity *auth.Identity) (*domain.User, error) {
	if identity == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	user, err := s.users.GetByUsername(ctx, identity.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("user", map[string]any{"username": identity.Subject})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// issueError keeps caller mistakes reported by the token service as 4xx.
func issueError(err error) error {
	if errors.Is(err, auth.ErrInvalidArgument) {
		return apperrors.NewInvalidArgument("cannot issue token", err)
	}
	return apperrors.NewInternalError(err)
}
