package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	OAuth    OAuthConfig
	Rate     RateConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	GRPCPort int
	// ClientURL is the application root; OAuth callbacks land on ClientURL + /api/oauth/callback.
	ClientURL string
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix
}

type DatabaseConfig struct {
	URL         string
	MaxConns    int
	OpTimeout   time.Duration
	AutoMigrate bool
}

type SecurityConfig struct {
	EncryptionKey string
	AuthSecret    string
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	CookieSecure  bool
}

type OAuthConfig struct {
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string
	StateTTL             time.Duration
}

type RateConfig struct {
	Burst     int
	PerSecond int
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	prefixVar := func(key string) []netip.Prefix {
		v, err := getEnvPrefixes(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}

	env := getEnv("QMARK_ENV", "production")
	cfg := &Config{
		Env:      env,
		LogLevel: getEnv("QMARK_LOG_LEVEL", ""),
		Server: ServerConfig{
			Host:      getEnv("QMARK_HOST", "0.0.0.0"),
			Port:      intVar("QMARK_PORT", 5000),
			GRPCPort:  intVar("QMARK_GRPC_PORT", 0),
			ClientURL: strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:5000"), "/"),

			TrustedProxies: prefixVar("QMARK_TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", "file:qmark.db"),
			MaxConns:    intVar("QMARK_DB_MAX_CONNS", 10),
			OpTimeout:   durVar("QMARK_DB_OP_TIMEOUT", 5*time.Second),
			AutoMigrate: boolVar("QMARK_DB_AUTO_MIGRATE", true),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("QMARK_ENCRYPTION_KEY", getEnv("ENCRYPTION_KEY", "")),
			AuthSecret:    getEnv("QMARK_AUTH_SECRET", getEnv("SESSION_SECRET", "")),
			TokenTTL:      durVar("QMARK_TOKEN_TTL", time.Hour),
			SessionTTL:    durVar("QMARK_SESSION_TTL", 7*24*time.Hour),
			CookieSecure:  boolVar("QMARK_COOKIE_SECURE", !strings.EqualFold(env, "development")),
		},
		OAuth: OAuthConfig{
			GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
			FacebookClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
			FacebookClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
			StateTTL:             durVar("QMARK_OAUTH_STATE_TTL", 10*time.Minute),
		},
		Rate: RateConfig{
			Burst:     intVar("QMARK_RATE_BURST", 40),
			PerSecond: intVar("QMARK_RATE_PER_SEC", 20),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Development reports whether ephemeral secrets are acceptable.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "test")
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GRPCAddr() string {
	if c.Server.GRPCPort <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// CallbackURL is the redirect URI registered with every OAuth provider.
func (c *Config) CallbackURL() string {
	return c.Server.ClientURL + "/api/oauth/callback"
}

// Validate reports missing settings. Outside development the encryption key and
// the token signing secret must be supplied by the operator.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if !c.Development() {
		if c.Security.EncryptionKey == "" {
			missing = append(missing, "QMARK_ENCRYPTION_KEY")
		}
		if c.Security.AuthSecret == "" {
			missing = append(missing, "QMARK_AUTH_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Security.TokenTTL <= 0 || c.Security.SessionTTL <= 0 {
		return errors.New("token and session TTL must be positive")
	}
	if c.Database.OpTimeout <= 0 {
		return errors.New("QMARK_DB_OP_TIMEOUT must be positive")
	}
	return nil
}

// MissingSecrets lists the operator-supplied secrets that are not set, by env var
// name, together with how many are checked.
func (c *Config) MissingSecrets() ([]string, int) {
	checks := []struct {
		name string
		set  bool
	}{
		{"QMARK_ENCRYPTION_KEY", c.Security.EncryptionKey != ""},
		{"QMARK_AUTH_SECRET", c.Security.AuthSecret != ""},
		{"GOOGLE_CLIENT_SECRET", c.OAuth.GoogleClientSecret != ""},
		{"FACEBOOK_CLIENT_SECRET", c.OAuth.FacebookClientSecret != ""},
	}
	missing := make([]string, 0, len(checks))
	for _, chk := range checks {
		if !chk.set {
			missing = append(missing, chk.name)
		}
	}
	return missing, len(checks)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// getEnvPrefixes parses a comma-separated list of addresses and CIDR ranges.
func getEnvPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range strings.Split(os.Getenv(key), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
