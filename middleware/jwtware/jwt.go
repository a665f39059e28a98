package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
)

const (
	DefaultContextKey = "account"
	defaultAuthScheme = "Bearer"
)

var defaultTokenLookup = "cookie:" + identity.AccessCookieName

// AccountResolver turns a raw access token into its account. It is
// implemented by identity.AuthService.
type AccountResolver interface {
	CurrentAccount(ctx context.Context, accessToken string) (*identity.Account, error)
}

// ValidationListener runs after the account is resolved and before the
// role check.
type ValidationListener func(c *fiber.Ctx, account *identity.Account) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	// ErrorHandler defaults to returning the error to the app error handler.
	ErrorHandler func(*fiber.Ctx, error) error
	ContextKey   string
	// TokenLookup is a comma separated list of source:name pairs, e.g.
	// "cookie:access_token,header:Authorization".
	TokenLookup string
	AuthScheme  string
	Resolver    AccountResolver
	// RequiredRole rejects accounts of any other role with ErrForbidden.
	RequiredRole identity.AccountRole

	ValidationListeners []ValidationListener
}

// New returns a middleware that resolves the session account and stores it
// under ContextKey.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw := ExtractRawToken(c, extractors)
		if raw == "" {
			return cfg.ErrorHandler(c, identity.ErrMissingToken)
		}

		account, err := cfg.Resolver.CurrentAccount(c.UserContext(), raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		for _, listener := range cfg.ValidationListeners {
			if listener == nil {
				continue
			}
			if err := listener(c, account); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		if cfg.RequiredRole != "" && account.Role != cfg.RequiredRole {
			return cfg.ErrorHandler(c, identity.ErrForbidden)
		}

		c.Locals(cfg.ContextKey, account)
		return cfg.SuccessHandler(c)
	}
}

// AccountFromContext returns the account stored by New.
func AccountFromContext(c *fiber.Ctx, key ...string) (*identity.Account, error) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	account, ok := c.Locals(k).(*identity.Account)
	if !ok || account == nil {
		return nil, identity.ErrMissingToken
	}
	return account, nil
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Resolver == nil {
		panic("IDENTITY: session middleware configuration: Resolver is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ *fiber.Ctx, err error) error {
			return err
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = defaultAuthScheme
	}

	return cfg
}

type TokenExtractor func(c *fiber.Ctx) (string, error)

var errTokenNotFound = errors.New("token not found")

// ExtractRawToken returns the first token found by extractors, or "".
func ExtractRawToken(c *fiber.Ctx, extractors []TokenExtractor) string {
	for _, extractor := range extractors {
		if raw, err := extractor(c); err == nil && raw != "" {
			return raw
		}
	}
	return ""
}

func GetExtractors(tokenLookup, authScheme string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[1])

		switch strings.TrimSpace(parts[0]) {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

func tokenFromHeader(header, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", errTokenNotFound
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Query(param); token != "" {
			return token, nil
		}
		return "", errTokenNotFound
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Cookies(name); token != "" {
			return token, nil
		}
		return "", errTokenNotFound
	}
}
