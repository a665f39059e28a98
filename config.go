package identity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every environment sourced setting. Load it once with
// LoadConfig and pass derived values to the components.
type Config struct {
	SigningSecret    string `env:"JWT_SECRET" env-required:"true" env-description:"HS256 signing secret" json:"-"`
	AccessTTLMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" env-default:"15" env-description:"access token lifetime in minutes" json:"access_ttl_minutes"`
	RefreshTTLDays   int    `env:"REFRESH_TOKEN_EXPIRE_DAYS" env-default:"7" env-description:"refresh token lifetime in days" json:"refresh_ttl_days"`
	Issuer           string `env:"JWT_ISSUER" env-default:"go-identity" json:"issuer"`
	Debug            bool   `env:"DEBUG" env-default:"false" env-description:"debug mode, disables secure cookies" json:"debug"`

	DatabaseURL string `env:"DATABASE_URL" env-default:"file::memory:?cache=shared" env-description:"postgres:// URL or sqlite DSN" json:"-"`
	RedisURL    string `env:"REDIS_URL" env-description:"task queue redis URL, in-process queue when empty" json:"-"`

	ResendAPIKey    string `env:"RESEND_API_KEY" json:"-"`
	FromEmail       string `env:"FROM_EMAIL" env-default:"onboarding@resend.dev" json:"from_email"`
	SiteName        string `env:"SITE_NAME" env-default:"logg.gg" json:"site_name"`
	VerificationURL string `env:"VERIFY_URL" env-default:"http://localhost:8080/auth/verify" json:"verification_url"`

	SMTPHost     string `env:"SMTP_HOST" json:"smtp_host,omitempty"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587" json:"smtp_port,omitempty"`
	SMTPUsername string `env:"SMTP_USERNAME" json:"-"`
	SMTPPassword string `env:"SMTP_PASSWORD" json:"-"`
	SMTPTLS      bool   `env:"SMTP_TLS" env-default:"false" json:"smtp_tls"`

	PasswordHasher  string        `env:"PASSWORD_HASHER" env-default:"bcrypt" json:"password_hasher"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" env-default:"48h" json:"cleanup_interval"`
	CleanupGrace    time.Duration `env:"CLEANUP_GRACE" env-default:"48h" json:"cleanup_grace"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s" env-description:"upper bound for a single auth flow" json:"request_timeout"`
	HTTPAddr        string        `env:"HTTP_ADDR" env-default:":8080" json:"http_addr"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info" json:"log_level"`
}

// LoadConfig reads the process environment and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to read configuration").
			WithTextCode(TextCodeValidation)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.SigningSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.AccessTTLMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTTLDays, validation.Required, validation.Min(1)),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.FromEmail, validation.Required, is.Email),
		validation.Field(&c.VerificationURL, is.URL),
		validation.Field(&c.PasswordHasher, validation.In("bcrypt", "argon2id")),
		validation.Field(&c.CleanupInterval, validation.Required),
		validation.Field(&c.CleanupGrace, validation.Required),
	)
	if err != nil {
		return ValidationError(err, "invalid configuration")
	}
	return nil
}

// SecureCookies is true outside of debug mode.
func (c Config) SecureCookies() bool {
	return !c.Debug
}

// TokenConfig derives the token service configuration.
func (c Config) TokenConfig() TokenConfig {
	return TokenConfig{
		SigningKey: []byte(c.SigningSecret),
		AccessTTL:  time.Duration(c.AccessTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(c.RefreshTTLDays) * 24 * time.Hour,
		Issuer:     c.Issuer,
	}
}

// SessionCookies derives the cookie contract.
func (c Config) SessionCookies() SessionCookies {
	tc := c.TokenConfig()
	return NewSessionCookies(tc.AccessTTL, tc.RefreshTTL, c.SecureCookies())
}
