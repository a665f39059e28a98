package mailer_test

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_RenderVerification(t *testing.T) {
	r, err := mailer.NewRenderer("Acme", "no-reply@acme.test")
	require.NoError(t, err)

	email, err := r.RenderVerification(identity.VerificationEmailMessage{
		Email:     "ada@example.com",
		Code:      "042137",
		MagicLink: "https://acme.test/verify/042137",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", email.To)
	assert.Equal(t, "no-reply@acme.test", email.From)
	assert.Equal(t, "Your authentication code for Acme", email.Subject)

	assert.Contains(t, email.HTML, "042137")
	assert.Contains(t, email.HTML, "Acme")
	assert.Contains(t, email.HTML, "15 minutes")
	assert.Contains(t, email.HTML, "https://acme.test/verify/042137")

	assert.Contains(t, email.Text, "042137")
	assert.Contains(t, email.Text, "https://acme.test/verify/042137")
}

func TestRenderer_WithoutMagicLink(t *testing.T) {
	r, err := mailer.NewRenderer("Acme", "no-reply@acme.test", mailer.WithCodeTTL(5*time.Minute))
	require.NoError(t, err)

	email, err := r.RenderVerification(identity.VerificationEmailMessage{
		Email: "ada@example.com",
		Code:  "123456",
	})
	require.NoError(t, err)

	assert.Contains(t, email.HTML, "5 minutes")
	assert.NotContains(t, email.HTML, "<a href")
	assert.NotContains(t, email.Text, "open this link")
}

func TestRenderer_WithTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		"verification.html": &fstest.MapFile{Data: []byte("{{ site_name }}:{{ otp_code }}")},
	}

	r, err := mailer.NewRenderer("Acme", "no-reply@acme.test", mailer.WithTemplates(fsys))
	require.NoError(t, err)

	email, err := r.RenderVerification(identity.VerificationEmailMessage{Code: "999000"})
	require.NoError(t, err)
	assert.Equal(t, "Acme:999000", email.HTML)
}
