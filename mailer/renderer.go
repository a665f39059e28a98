package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
)

//go:embed templates
var templatesFS embed.FS

const verificationTemplate = "verification"

// Renderer renders verification emails from the embedded django templates
type Renderer struct {
	engine   *django.Engine
	siteName string
	from     string
	codeTTL  time.Duration
}

var _ identity.EmailRenderer = (*Renderer)(nil)

type RendererOption func(*Renderer)

// WithTemplates replaces the embedded templates. fsys must contain a
// verification.html template.
func WithTemplates(fsys fs.FS) RendererOption {
	return func(r *Renderer) {
		if fsys != nil {
			r.engine = django.NewFileSystem(http.FS(fsys), ".html")
		}
	}
}

// WithCodeTTL sets the validity window quoted in the email body.
func WithCodeTTL(ttl time.Duration) RendererOption {
	return func(r *Renderer) {
		if ttl > 0 {
			r.codeTTL = ttl
		}
	}
}

func NewRenderer(siteName, from string, opts ...RendererOption) (*Renderer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		engine:   django.NewFileSystem(http.FS(sub), ".html"),
		siteName: siteName,
		from:     from,
		codeTTL:  identity.DefaultVerificationCodeTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if err := r.engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}

	return r, nil
}

// Subject is the subject line of verification emails
func (r *Renderer) Subject() string {
	return fmt.Sprintf("Your authentication code for %s", r.siteName)
}

func (r *Renderer) RenderVerification(msg identity.VerificationEmailMessage) (identity.Email, error) {
	ttlMinutes := int(r.codeTTL / time.Minute)

	var buf bytes.Buffer
	err := r.engine.Render(&buf, verificationTemplate, map[string]any{
		"site_name":      r.siteName,
		"otp_code":       msg.Code,
		"magic_link_url": msg.MagicLink,
		"ttl_minutes":    ttlMinutes,
	})
	if err != nil {
		return identity.Email{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render verification email")
	}

	text := fmt.Sprintf("Your verification code for %s: %s\nThe code expires in %d minutes.\n", r.siteName, msg.Code, ttlMinutes)
	if msg.MagicLink != "" {
		text += fmt.Sprintf("Or open this link to verify your email: %s\n", msg.MagicLink)
	}

	return identity.Email{
		To:      msg.Email,
		From:    r.from,
		Subject: r.Subject(),
		HTML:    buf.String(),
		Text:    text,
	}, nil
}
