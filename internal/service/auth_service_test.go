package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/task-manager/internal/auth"
	"github.com/spec-kit/task-manager/internal/config"
	"github.com/spec-kit/task-manager/internal/domain"
	"github.com/spec-kit/task-manager/internal/repository"
)

func newAuthFixture(t *testing.T) (*AuthService, repository.UserRepository) {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: "service-test-secret-0123456789abcdef",
		Expiry: time.Hour,
	})
	require.NoError(t, err)
	users := repository.NewMemoryStore().Users()
	return NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, users, tokens, nil), users
}

func TestRegister(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, " alice ", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)
	assert.NotEqual(t, "s3cret", result.User.PasswordHash)
	assert.Equal(t, []string{domain.DefaultAuthority}, result.User.Authorities)
	assert.True(t, svc.Tokens().Validate(result.Token.Value, "alice"))

	_, err = svc.Register(ctx, "alice", "other@example.com", "pw")
	de := requireCode(t, err, "CONFLICT")
	assert.Equal(t, 409, de.HTTPStatus)

	_, err = svc.Register(ctx, "bob", "ALICE@example.com", "pw")
	requireCode(t, err, "CONFLICT")
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	cases := map[string]struct {
		username, email, password string
		field                     string
	}{
		"blank username":  {"  ", "a@example.com", "pw", "username"},
		"long username":   {strings.Repeat("u", 101), "a@example.com", "pw", "username"},
		"blank email":     {"alice", "", "pw", "email"},
		"invalid email":   {"alice", "not-an-email", "pw", "email"},
		"blank password":  {"alice", "a@example.com", "   ", "password"},
		"password > 72 B": {"alice", "a@example.com", strings.Repeat("p", 73), "password"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.username, tc.email, tc.password)
			de := requireCode(t, err, "VALIDATION_FAILED")
			assert.Contains(t, de.Details, tc.field)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, users := newAuthFixture(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	subject, err := svc.Tokens().ExtractSubject(result.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "mallory", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "", "")
	requireCode(t, err, "VALIDATION_FAILED")

	hash, err := auth.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, &domain.User{Username: "dora", Email: "dora@example.com", PasswordHash: hash}))
	_, err = svc.Login(ctx, "dora", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "disabled accounts cannot log in")
}

func TestLoadIdentity(t *testing.T) {
	svc, users := newAuthFixture(t)
	ctx := context.Background()
	registered, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	identity, err := svc.LoadIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, registered.User.ID, identity.UserID)
	assert.True(t, identity.HasAuthority(auth.AuthorityUser))

	_, err = svc.LoadIdentity(ctx, "ghost")
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)

	require.NoError(t, users.Create(ctx, &domain.User{Username: "dora", Email: "dora@example.com"}))
	_, err = svc.LoadIdentity(ctx, "dora")
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)

	user, err := svc.CurrentUser(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = svc.CurrentUser(ctx, nil)
	requireCode(t, err, "UNAUTHORIZED")
}

func TestIssueError(t *testing.T) {
	invalid := issueError(fmt.Errorf("%w: subject must not be empty", auth.ErrInvalidArgument))
	de := requireCode(t, invalid, "INVALID_ARGUMENT")
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.ErrorIs(t, invalid, auth.ErrInvalidArgument)

	_, err := newTokenServiceForIssue(t).Issue("   ")
	requireCode(t, issueError(err), "INVALID_ARGUMENT")

	de = requireCode(t, issueError(errors.New("signer broke")), "INTERNAL_ERROR")
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
}

func newTokenServiceForIssue(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "service-test-secret-0123456789abcdef", Expiry: time.Minute})
	require.NoError(t, err)
	return tokens
}
