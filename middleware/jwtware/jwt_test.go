package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/jwtware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[string]*identity.Account

func (s stubResolver) CurrentAccount(_ context.Context, token string) (*identity.Account, error) {
	if token == "" {
		return nil, identity.ErrMissingToken
	}
	account, ok := s[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return account, nil
}

func newApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, identity.ErrForbidden) {
				return c.SendStatus(fiber.StatusForbidden)
			}
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})
	app.Use(jwtware.New(cfg))
	app.Get("/", func(c *fiber.Ctx) error {
		account, err := jwtware.AccountFromContext(c)
		if err != nil {
			return err
		}
		return c.SendString(account.Email)
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func fixtures() stubResolver {
	return stubResolver{
		"user-token": {
			ID:     uuid.New(),
			Email:  "user@example.com",
			Status: identity.AccountStatusVerified,
			Role:   identity.RoleUser,
		},
		"admin-token": {
			ID:     uuid.New(),
			Email:  "admin@example.com",
			Status: identity.AccountStatusVerified,
			Role:   identity.RoleAdmin,
		},
	}
}

func TestJWTWare_CookieLookup(t *testing.T) {
	app := newApp(jwtware.Config{Resolver: fixtures()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessCookieName, Value: "user-token"})
	status, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user@example.com", body)
}

func TestJWTWare_MissingAndInvalidToken(t *testing.T) {
	app := newApp(jwtware.Config{Resolver: fixtures()})

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessCookieName, Value: "forged"})
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestJWTWare_HeaderLookup(t *testing.T) {
	app := newApp(jwtware.Config{
		Resolver:    fixtures(),
		TokenLookup: "cookie:" + identity.AccessCookieName + ",header:Authorization",
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	status, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "admin@example.com", body)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic admin-token")
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestJWTWare_RequiredRole(t *testing.T) {
	app := newApp(jwtware.Config{
		Resolver:     fixtures(),
		RequiredRole: identity.RoleAdmin,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessCookieName, Value: "user-token"})
	status, _ := do(t, app, req)
	assert.Equal(t, fiber.StatusForbidden, status)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessCookieName, Value: "admin-token"})
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestJWTWare_FilterFunction(t *testing.T) {
	app := fiber.New()
	app.Use(jwtware.New(jwtware.Config{
		Resolver: fixtures(),
		Filter: func(c *fiber.Ctx) bool {
			return c.Path() == "/public"
		},
	}))
	app.Get("/public", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestJWTWare_ValidationListener(t *testing.T) {
	var seen string
	app := newApp(jwtware.Config{
		Resolver: fixtures(),
		ValidationListeners: []jwtware.ValidationListener{
			func(_ *fiber.Ctx, account *identity.Account) error {
				seen = account.Email
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessCookieName, Value: "user-token"})
	status, _ := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user@example.com", seen)
}

func TestJWTWare_RequiresResolver(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}

func TestGetExtractors(t *testing.T) {
	extractors := jwtware.GetExtractors("cookie:a, header:Authorization ,query:token,bogus", "Bearer")
	assert.Len(t, extractors, 3)
}
