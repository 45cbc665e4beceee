// Package config handles configuration for the server,
// including defaults, environment variables and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// Auth mode selects who verifies bearer tokens on protected routes.
const (
	AuthModeLocal = "local" // собственные JWT
	AuthModeIdp   = "idp"   // внешний identity provider
)

// Supported storage backends.
const (
	BackendSqlite = "sqlite"
	BackendBolt   = "bolt"
)

// Config holds runtime settings for the Cushion server.
//
// Fields:
//   - Address: bind address for the HTTP endpoint.
//   - StorageBackend: "sqlite" or "bolt".
//   - DatabasePath: path to the database file.
//   - JWTAccessSecret / JWTRefreshSecret: HMAC secrets for signing JWTs (HS256).
//     Must differ; a shared secret would let one token kind pass for the other.
//   - AccessTTL / RefreshTTL: token lifetimes.
//   - AuthMode: "local" or "idp".
//   - IdpURL / IdpAPIKey / IdpTimeout: external identity provider settings,
//     used only in idp mode.
type Config struct {
	Address          string
	StorageBackend   string
	DatabasePath     string
	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	AuthMode         string
	IdpURL           string
	IdpAPIKey        string
	IdpTimeout       time.Duration
}

// LoadDefaults populates Config with development defaults.
// Секреты по умолчанию пустые: сервер без них не стартует.
func (c *Config) LoadDefaults() {
	c.Address = ":8080"
	c.StorageBackend = BackendSqlite
	c.DatabasePath = "cushion.db"
	c.AccessTTL = 15 * time.Minute
	c.RefreshTTL = 7 * 24 * time.Hour
	c.AuthMode = AuthModeLocal
	c.IdpTimeout = 5 * time.Second
}

// Load builds a Config by applying defaults, then overlaying values from
// environment variables and finally from command-line flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := cfg.parseEnv(); err != nil {
		return nil, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseEnv overlays Config fields from environment variables
func (c *Config) parseEnv() error {
	if v := os.Getenv("CUSHION_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("CUSHION_STORAGE_BACKEND"); v != "" {
		c.StorageBackend = v
	}
	if v := os.Getenv("CUSHION_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("JWT_ACCESS_SECRET"); v != "" {
		c.JWTAccessSecret = v
	}
	if v := os.Getenv("JWT_REFRESH_SECRET"); v != "" {
		c.JWTRefreshSecret = v
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		c.AuthMode = v
	}
	if v := os.Getenv("IDP_URL"); v != "" {
		c.IdpURL = v
	}
	if v := os.Getenv("IDP_API_KEY"); v != "" {
		c.IdpAPIKey = v
	}

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"JWT_ACCESS_TTL", &c.AccessTTL},
		{"JWT_REFRESH_TTL", &c.RefreshTTL},
		{"IDP_TIMEOUT", &c.IdpTimeout},
	} {
		v := os.Getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// parseFlags overlays Config fields from command-line flags.
// Flags win over environment variables.
func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("cushion-server", flag.ContinueOnError)

	fs.StringVar(&c.Address, "a", c.Address, "address and port to run server")
	fs.StringVar(&c.StorageBackend, "storage", c.StorageBackend, "storage backend (sqlite or bolt)")
	fs.StringVar(&c.DatabasePath, "d", c.DatabasePath, "database file path")
	fs.StringVar(&c.AuthMode, "auth-mode", c.AuthMode, "auth mode (local or idp)")
	fs.StringVar(&c.IdpURL, "idp-url", c.IdpURL, "identity provider base URL")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "refresh token lifetime")

	return fs.Parse(args)
}

// Validate checks that the configuration can actually run a server.
// Called once at startup; any error is fatal.
func (c *Config) Validate() error {
	if c.StorageBackend != BackendSqlite && c.StorageBackend != BackendBolt {
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}

	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}

	// Одинаковые секреты позволили бы подменить один вид токена другим
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}

	switch c.AuthMode {
	case AuthModeLocal:
	case AuthModeIdp:
		if c.IdpURL == "" {
			return errors.New("IDP_URL is required in idp mode")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}

	return nil
}
