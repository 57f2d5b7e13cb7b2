// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package config loads service settings and secrets.
//
// Settings are layered: flag defaults, then an optional YAML file, then flags
// set on the command line. Secrets are read only from the environment.
package config

import (
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/logging"
)

// Config is the complete service configuration.
type Config struct {
	HTTP         HTTPConfig         `koanf:"http"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	Log          LogConfig          `koanf:"log"`
	Database     DatabaseConfig     `koanf:"database"`
	Token        TokenConfig        `koanf:"token"`
	Confirmation ConfirmationConfig `koanf:"confirmation"`
	Mail         MailConfig         `koanf:"mail"`
	Google       GoogleConfig       `koanf:"google"`

	Secrets Secrets `koanf:"-"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr          string `koanf:"addr"`
	Origin        string `koanf:"origin"`
	SecureCookies bool   `koanf:"secure_cookies"`
	CookieDomain  string `koanf:"cookie_domain"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig sizes the Postgres pool.
type DatabaseConfig struct {
	MaxConns int32 `koanf:"max_conns"`
	MinConns int32 `koanf:"min_conns"`
}

// TokenConfig configures access and refresh tokens.
type TokenConfig struct {
	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
}

// ConfirmationConfig configures email confirmation tokens.
type ConfirmationConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// MailConfig configures outgoing mail. An empty SMTPHost logs mail instead
// of sending it.
type MailConfig struct {
	From         string `koanf:"from"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	Workers      int    `koanf:"workers"`
	QueueSize    int    `koanf:"queue_size"`
	MaxRetries   uint64 `koanf:"max_retries"`
}

// GoogleConfig configures Google sign-in. An empty ClientID disables it.
type GoogleConfig struct {
	ClientID    string `koanf:"client_id"`
	RedirectURL string `koanf:"redirect_url"`
}

// Secrets are read from the environment only.
type Secrets struct {
	JWTSecret          string `env:"AUTHGATE_JWT_SECRET"`
	DatabaseURL        string `env:"DATABASE_URL"`
	RedisURL           string `env:"REDIS_URL"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	SMTPPassword       string `env:"SMTP_PASSWORD"`
}

// flagKeys maps each flag to its koanf key.
var flagKeys = map[string]string{
	"http-addr":           "http.addr",
	"origin":              "http.origin",
	"secure-cookies":      "http.secure_cookies",
	"cookie-domain":       "http.cookie_domain",
	"metrics-addr":        "metrics.addr",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"db-max-conns":        "database.max_conns",
	"db-min-conns":        "database.min_conns",
	"token-issuer":        "token.issuer",
	"access-ttl":          "token.access_ttl",
	"refresh-ttl":         "token.refresh_ttl",
	"confirmation-ttl":    "confirmation.ttl",
	"mail-from":           "mail.from",
	"smtp-host":           "mail.smtp_host",
	"smtp-port":           "mail.smtp_port",
	"smtp-username":       "mail.smtp_username",
	"mail-workers":        "mail.workers",
	"mail-queue-size":     "mail.queue_size",
	"mail-max-retries":    "mail.max_retries",
	"google-client-id":    "google.client_id",
	"google-redirect-url": "google.redirect_url",
}

// RegisterFlags defines every setting flag on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", ":8080", "public API listen address")
	fs.String("origin", "http://localhost:3000", "frontend origin used for redirects and email links")
	fs.Bool("secure-cookies", false, "mark session cookies Secure")
	fs.String("cookie-domain", "", "session cookie domain (empty = host only)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Int32("db-max-conns", 10, "maximum Postgres pool connections")
	fs.Int32("db-min-conns", 0, "minimum idle Postgres pool connections")
	fs.String("token-issuer", auth.DefaultIssuer, "issuer claim of access tokens")
	fs.Duration("access-ttl", auth.DefaultAccessTokenTTL, "access token lifetime")
	fs.Duration("refresh-ttl", auth.DefaultRefreshTokenTTL, "refresh token lifetime")
	fs.Duration("confirmation-ttl", auth.ConfirmationTokenTTL, "email confirmation token lifetime")
	fs.String("mail-from", "no-reply@localhost", "sender address of outgoing mail")
	fs.String("smtp-host", "", "SMTP relay host (empty = log mail instead of sending)")
	fs.Int("smtp-port", 587, "SMTP relay port")
	fs.String("smtp-username", "", "SMTP username (password from SMTP_PASSWORD)")
	fs.Int("mail-workers", 2, "mail delivery workers")
	fs.Int("mail-queue-size", 256, "queued mail capacity")
	fs.Uint64("mail-max-retries", 4, "delivery retries per message")
	fs.String("google-client-id", "", "Google OAuth client id (empty = Google sign-in disabled)")
	fs.String("google-redirect-url", "", "Google OAuth redirect URL")
}

// Load reads settings from path (optional) and fs, and secrets from the
// process environment.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	return LoadWithEnv(path, fs, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ reads the
// process environment.
func LoadWithEnv(path string, fs *pflag.FlagSet, environ map[string]string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	secrets, err := LoadSecrets(environ)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = secrets
	return &cfg, nil
}

// LoadSecrets reads secrets from environ, or the process environment when
// environ is nil.
func LoadSecrets(environ map[string]string) (Secrets, error) {
	var s Secrets
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Secrets{}, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return s, nil
}

// Validate checks everything the serve command needs.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	origin, err := url.Parse(c.HTTP.Origin)
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return invalid("http.origin", "must be an absolute http(s) URL")
	}
	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn, or error")
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return invalid("database", "pool sizes must satisfy 0 <= min_conns <= max_conns")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return invalid("token", "TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return invalid("token.refresh_ttl", "must not be shorter than token.access_ttl")
	}
	if c.Confirmation.TTL <= 0 {
		return invalid("confirmation.ttl", "must be positive")
	}
	if c.Mail.From == "" {
		return invalid("mail.from", "is required")
	}
	if c.Mail.SMTPHost != "" && (c.Mail.SMTPPort <= 0 || c.Mail.SMTPPort > 65535) {
		return invalid("mail.smtp_port", "must be between 1 and 65535")
	}
	if c.Mail.Workers <= 0 || c.Mail.QueueSize <= 0 {
		return invalid("mail", "workers and queue_size must be positive")
	}
	if c.Google.ClientID != "" {
		if c.Google.RedirectURL == "" {
			return invalid("google.redirect_url", "is required when google.client_id is set")
		}
		if c.Secrets.GoogleClientSecret == "" {
			return invalid("GOOGLE_CLIENT_SECRET", "is required when google.client_id is set")
		}
	}

	if len(c.Secrets.JWTSecret) < auth.MinSigningSecretLength {
		return invalid("AUTHGATE_JWT_SECRET", "must be at least 32 bytes")
	}
	if c.Secrets.DatabaseURL == "" {
		return invalid("DATABASE_URL", "is required")
	}
	if c.Secrets.RedisURL == "" {
		return invalid("REDIS_URL", "is required")
	}
	return nil
}

func invalid(field, reason string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, reason)
}
