package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/jwtware"
)

// Routes holds the paths served by the handler
type Routes struct {
	Signup  string
	Verify  string
	Resend  string
	Login   string
	Refresh string
	Logout  string
	Me      string
}

var DefaultRoutes = Routes{
	Signup:  "/auth/signup",
	Verify:  "/auth/verify",
	Resend:  "/auth/resend",
	Login:   "/auth/login",
	Refresh: "/auth/refresh",
	Logout:  "/auth/logout",
	Me:      "/users/me",
}

// Handler exposes the auth flows over HTTP, carrying tokens in the
// session cookies.
type Handler struct {
	auth    *identity.AuthService
	cookies identity.SessionCookies
	routes  Routes
	logger  identity.Logger
}

type Option func(*Handler)

func WithRoutes(routes Routes) Option {
	return func(h *Handler) {
		h.routes = routes
	}
}

func WithLogger(logger identity.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(auth *identity.AuthService, cookies identity.SessionCookies, opts ...Option) *Handler {
	h := &Handler{
		auth:    auth,
		cookies: cookies,
		routes:  DefaultRoutes,
		logger:  identity.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// NewApp returns a fiber app with the error handler installed and the
// routes registered.
func NewApp(h *Handler, cfg ...fiber.Config) *fiber.App {
	var c fiber.Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = ErrorHandler(h.logger)
	}
	app := fiber.New(c)
	h.Register(app)
	return app
}

// Session returns the middleware that loads the account from the access
// cookie.
func (h *Handler) Session(opts ...func(*jwtware.Config)) fiber.Handler {
	cfg := jwtware.Config{
		Resolver:    h.auth,
		TokenLookup: "cookie:" + h.cookies.AccessName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return jwtware.New(cfg)
}

// AdminOnly returns the session middleware restricted to admin accounts.
func (h *Handler) AdminOnly() fiber.Handler {
	return h.Session(func(cfg *jwtware.Config) {
		cfg.ValidationListeners = append(cfg.ValidationListeners, func(_ *fiber.Ctx, account *identity.Account) error {
			return h.auth.RequireAdmin(account)
		})
	})
}

func (h *Handler) Register(r fiber.Router) {
	r.Post(h.routes.Signup, h.Signup)
	r.Post(h.routes.Verify, h.Verify)
	// magic link
	r.Get(h.routes.Verify, h.Verify)
	r.Post(h.routes.Resend, h.Resend)
	r.Post(h.routes.Login, h.Login)
	r.Post(h.routes.Refresh, h.Refresh)
	r.Post(h.routes.Logout, h.Logout)
	r.Get(h.routes.Me, h.Session(), h.Me)
}

func (h *Handler) Signup(c *fiber.Ctx) error {
	var input identity.SignupInput
	if err := c.BodyParser(&input); err != nil {
		return invalidPayload(err)
	}

	res, err := h.auth.Signup(c.UserContext(), input)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if c.Method() == fiber.MethodGet {
		if err := c.QueryParser(&req); err != nil {
			return invalidPayload(err)
		}
	} else if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}

	if err := req.Validate(); err != nil {
		return invalidPayload(err)
	}

	res, err := h.auth.Verify(c.UserContext(), req.Email, req.Code)
	if err != nil {
		// unknown emails answer like a wrong code
		if identity.IsNotFound(err) {
			return identity.ErrInvalidCode
		}
		return err
	}

	if res.Tokens != nil {
		h.setCookies(c, h.cookies.Set(res.Tokens))
	}

	return c.JSON(fiber.Map{
		"verified":         true,
		"already_verified": res.AlreadyVerified,
		"account":          newAccountView(res.Account),
	})
}

func (h *Handler) Resend(c *fiber.Ctx) error {
	var req resendRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	if err := req.Validate(); err != nil {
		return invalidPayload(err)
	}

	if err := h.auth.ResendCode(c.UserContext(), req.Email); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "sent"})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	if err := req.Validate(); err != nil {
		return invalidPayload(err)
	}

	pair, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setCookies(c, h.cookies.Set(pair))
	return c.JSON(fiber.Map{
		"authenticated":      true,
		"access_expires_at":  pair.AccessExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
	})
}

func (h *Handler) Refresh(c *fiber.Ctx) error {
	pair, err := h.auth.Refresh(c.UserContext(), c.Cookies(h.cookies.RefreshName))
	if err != nil {
		return err
	}

	h.setCookies(c, h.cookies.Set(pair))
	return c.JSON(fiber.Map{
		"refreshed":          true,
		"access_expires_at":  pair.AccessExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
	})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	h.setCookies(c, h.cookies.Clear())
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Me(c *fiber.Ctx) error {
	account, err := jwtware.AccountFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(newAccountView(account))
}

func (h *Handler) setCookies(c *fiber.Ctx, cookies []identity.Cookie) {
	for _, ck := range cookies {
		c.Cookie(toFiberCookie(ck))
	}
}

func toFiberCookie(ck identity.Cookie) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Path:     ck.Path,
		MaxAge:   ck.MaxAge,
		Expires:  ck.Expires,
		Secure:   ck.Secure,
		HTTPOnly: ck.HTTPOnly,
		SameSite: ck.SameSite,
	}
}
