package auth_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/task-manager/internal/auth"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) LoadIdentity(ctx context.Context, subject string) (*auth.Identity, error) {
	args := m.Called(ctx, subject)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

func userIdentity(subject string) *auth.Identity {
	return &auth.Identity{Subject: subject, Authorities: []string{auth.AuthorityUser}}
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).SendString(fe.Message)
	}
	de := apperrors.ToDomainError(err)
	return c.Status(de.HTTPStatus).SendString(de.Code)
}

// newInterceptorApp mounts the middleware in front of a handler echoing the bound subject.
func newInterceptorApp(mw *auth.AuthMiddleware, before ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	for _, h := range before {
		app.Use(h)
	}
	app.Use(mw.Handle)
	app.Get("/whoami", func(c *fiber.Ctx) error {
		identity, ok := auth.CurrentIdentity(c)
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString(identity.Subject)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("handler exploded")
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware_PassThroughWithoutCredentials(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	loader := &mockLoader{}
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, nil))

	for name, header := range map[string]string{
		"no header":       "",
		"basic scheme":    "Basic YWxpY2U6c2VjcmV0",
		"bare token":      "eyJhbGciOiJIUzI1NiJ9.e30.sig",
		"empty bearer":    "Bearer    ",
		"scheme glued":    "Bearerabc.def.ghi",
		"garbage bearer":  "Bearer garbage",
		"malformed token": "Bearer a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			status, body := doRequest(t, app, "/whoami", header)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "anonymous", body)
		})
	}
	loader.AssertNotCalled(t, "LoadIdentity", mock.Anything, mock.Anything)
}

func TestAuthMiddleware_BindsValidToken(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	issued, err := tokens.Issue("alice")
	require.NoError(t, err)

	loader := &mockLoader{}
	loader.On("LoadIdentity", mock.Anything, "alice").Return(userIdentity("alice"), nil)
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, nil))

	for name, header := range map[string]string{
		"canonical": "Bearer " + issued.Value,
		"lowercase": "bearer " + issued.Value,
		"padded":    "Bearer    " + issued.Value + "  ",
	} {
		t.Run(name, func(t *testing.T) {
			status, body := doRequest(t, app, "/whoami", header)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "alice", body)
		})
	}
	loader.AssertExpectations(t)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	clock := newFakeClock()
	tokens := newTokenService(t, time.Minute, clock)
	issued, err := tokens.Issue("alice")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	loader := &mockLoader{}
	loader.On("LoadIdentity", mock.Anything, "alice").Return(userIdentity("alice"), nil).Maybe()

	core, logs := observer.New(zapcore.DebugLevel)
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, zap.New(core)))

	status, body := doRequest(t, app, "/whoami", "Bearer "+issued.Value)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	entries := logs.FilterMessage("bearer token failed validation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "expired", entries[0].ContextMap()["status"])
}

func TestAuthMiddleware_LookupFailures(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	issued, err := tokens.Issue("alice")
	require.NoError(t, err)

	cases := map[string]struct {
		identity *auth.Identity
		err      error
	}{
		"not found":        {err: auth.ErrIdentityNotFound},
		"store failure":    {err: errors.New("connection refused")},
		"nil identity":     {},
		"subject mismatch": {identity: userIdentity("alice2")},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			loader := &mockLoader{}
			loader.On("LoadIdentity", mock.Anything, "alice").Return(tc.identity, tc.err).Once()

			core, logs := observer.New(zapcore.DebugLevel)
			app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, zap.New(core)))

			status, body := doRequest(t, app, "/whoami", "Bearer "+issued.Value)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "anonymous", body)
			assert.NotZero(t, logs.Len())
			loader.AssertExpectations(t)
		})
	}
}

func TestAuthMiddleware_LogsRejectedToken(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	core, logs := observer.New(zapcore.DebugLevel)
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, &mockLoader{}, zap.New(core)))

	status, _ := doRequest(t, app, "/whoami", "Bearer not.a.token")
	assert.Equal(t, http.StatusOK, status)

	entries := logs.FilterMessage("bearer token rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/whoami", entries[0].ContextMap()["path"])
}

func TestAuthMiddleware_AlreadyAuthenticated(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	issued, err := tokens.Issue("alice")
	require.NoError(t, err)

	loader := &mockLoader{}
	preBound := func(c *fiber.Ctx) error {
		c.SetUserContext(auth.WithIdentity(c.UserContext(), userIdentity("root")))
		return c.Next()
	}
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, nil), preBound)

	_, body := doRequest(t, app, "/whoami", "Bearer "+issued.Value)
	assert.Equal(t, "root", body)
	loader.AssertNotCalled(t, "LoadIdentity", mock.Anything, mock.Anything)
}

func TestAuthMiddleware_CancelledRequest(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	issued, err := tokens.Issue("alice")
	require.NoError(t, err)

	loader := &mockLoader{}
	loader.On("LoadIdentity", mock.Anything, "alice").Return(userIdentity("alice"), nil).Maybe()

	cancelled := func(c *fiber.Ctx) error {
		ctx, cancel := context.WithCancel(c.UserContext())
		cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, nil), cancelled)

	_, body := doRequest(t, app, "/whoami", "Bearer "+issued.Value)
	assert.Equal(t, "anonymous", body)
}

func TestAuthMiddleware_ClearsIdentityAfterRequest(t *testing.T) {
	tokens := newTokenService(t, time.Hour, nil)
	issued, err := tokens.Issue("alice")
	require.NoError(t, err)

	loader := &mockLoader{}
	loader.On("LoadIdentity", mock.Anything, "alice").Return(userIdentity("alice"), nil)

	var leaked []bool
	observe := func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fiber.NewError(http.StatusInternalServerError, "recovered")
			}
			_, bound := auth.CurrentIdentity(c)
			leaked = append(leaked, bound)
		}()
		return c.Next()
	}
	app := newInterceptorApp(auth.NewAuthMiddleware(tokens, loader, nil), observe)

	_, body := doRequest(t, app, "/whoami", "Bearer "+issued.Value)
	assert.Equal(t, "alice", body)

	status, _ := doRequest(t, app, "/boom", "Bearer "+issued.Value)
	assert.Equal(t, http.StatusInternalServerError, status)

	_, body = doRequest(t, app, "/whoami", "")
	assert.Equal(t, "anonymous", body, "identity must not carry over to the next request")

	assert.Equal(t, []bool{false, false, false}, leaked)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"Bearer \t abc \t", "abc", true},
		{"Token abc", "", false},
	}
	for _, tc := range cases {
		token, ok := auth.BearerToken(tc.header)
		assert.Equal(t, tc.ok, ok, "header %q", tc.header)
		assert.Equal(t, tc.token, token, "header %q", tc.header)
	}
}
