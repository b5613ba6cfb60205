package identity

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// EnvConfig is the environment backed Config implementation. Values are read
// once at startup and are immutable for the process lifetime.
type EnvConfig struct {
	AccessSigningKey  string        `env:"IDENTITY_ACCESS_TOKEN_SECRET,notEmpty"`
	RefreshSigningKey string        `env:"IDENTITY_REFRESH_TOKEN_SECRET,notEmpty"`
	AccessTokenTTL    time.Duration `env:"IDENTITY_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL   time.Duration `env:"IDENTITY_REFRESH_TOKEN_TTL" envDefault:"168h"`
	Issuer            string        `env:"IDENTITY_ISSUER" envDefault:"go-identity"`
	Audience          []string      `env:"IDENTITY_AUDIENCE" envSeparator:","`
	BaseURL           string        `env:"IDENTITY_BASE_URL" envDefault:"http://localhost:3000"`

	SMTPHost     string `env:"IDENTITY_SMTP_HOST"`
	SMTPPort     int    `env:"IDENTITY_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"IDENTITY_SMTP_USERNAME"`
	SMTPPassword string `env:"IDENTITY_SMTP_PASSWORD"`
	SMTPSender   string `env:"IDENTITY_SMTP_SENDER"`
}

var _ Config = (*EnvConfig)(nil)

// LoadConfig parses configuration from environment variables.
func LoadConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment configuration")
	}

	if cfg.AccessSigningKey == cfg.RefreshSigningKey {
		return nil, goerrors.New("access and refresh secrets must differ", goerrors.CategoryBadInput)
	}

	return cfg, nil
}

func (c *EnvConfig) GetAccessSigningKey() string { return c.AccessSigningKey }

func (c *EnvConfig) GetRefreshSigningKey() string { return c.RefreshSigningKey }

func (c *EnvConfig) GetAccessTokenExpiration() time.Duration { return c.AccessTokenTTL }

func (c *EnvConfig) GetRefreshTokenExpiration() time.Duration { return c.RefreshTokenTTL }

func (c *EnvConfig) GetIssuer() string { return c.Issuer }

func (c *EnvConfig) GetAudience() []string { return c.Audience }

func (c *EnvConfig) GetBaseURL() string { return c.BaseURL }

// SMTPOptions maps the mail transport settings.
func (c *EnvConfig) SMTPOptions() SMTPOptions {
	return SMTPOptions{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPSender,
	}
}
