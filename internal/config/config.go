// Package config loads the server configuration from the environment.
//
// WHERE VALUES COME FROM:
// 1. Real environment variables always win.
// 2. A .env file (if present) fills in anything not already set. This is the
//    usual local-development setup; production leaves the file out.
// 3. Everything else falls back to the defaults below.
//
// Load validates the result, so the rest of the program can trust a *Config
// without re-checking it: secrets are long enough, durations parse, the port
// is numeric.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 16

// Config holds every setting the server reads at start-up.
type Config struct {
	Port     int
	Env      string // "development" or "production"
	LogLevel slog.Level

	// Store selection: MongoURI set → mongo backend, otherwise sqlite at DBPath.
	DBPath   string
	MongoURI string
	MongoDB  string

	// RedisURL enables the refresh-token revocation list when set.
	RedisURL string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	BcryptCost       int

	// UserCacheTTL of 0 disables the user cache.
	UserCacheTTL time.Duration

	ClientURL   string
	CORSOrigins []string

	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPassword string
	EmailFrom     string
	SMTPTimeout   time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
}

// IsProduction reports whether APP_ENV is "production". It controls the log
// format and the Secure flag on cookies.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MailEnabled reports whether enough SMTP settings are present to send mail.
func (c *Config) MailEnabled() bool {
	return c.EmailHost != "" && c.EmailFrom != ""
}

// GoogleEnabled reports whether the Google OAuth routes should be registered.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// Load reads .env files (missing files are fine) and then the environment.
// With no arguments it looks for ".env" in the working directory.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any key/value source. Tests pass a map
// lookup here instead of touching the process environment.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		Port:     p.int("PORT", 5000),
		Env:      p.string("APP_ENV", "development"),
		LogLevel: p.level("LOG_LEVEL", slog.LevelInfo),

		DBPath:   p.string("DB_PATH", "data/storefront.db"),
		MongoURI: p.string("MONGO_URI", p.string("MONGODB_URI", "")),
		MongoDB:  p.string("MONGO_DB", "storefront"),
		RedisURL: p.string("REDIS_URL", ""),

		JWTSecret:        p.string("JWT_SECRET", ""),
		JWTRefreshSecret: p.string("JWT_REFRESH_SECRET", ""),
		AccessTokenTTL:   p.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  p.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:       p.int("BCRYPT_COST", 10),
		UserCacheTTL:     p.duration("USER_CACHE_TTL", 30*time.Second),

		ClientURL: strings.TrimRight(p.string("CLIENT_URL", "http://localhost:5173"), "/"),

		EmailHost:     p.string("EMAIL_HOST", ""),
		EmailPort:     p.int("EMAIL_PORT", 587),
		EmailUser:     p.string("EMAIL_USER", ""),
		EmailPassword: p.string("EMAIL_PASSWORD", ""),
		EmailFrom:     p.string("EMAIL_FROM", ""),
		SMTPTimeout:   p.duration("SMTP_TIMEOUT", 10*time.Second),

		GoogleClientID:     p.string("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: p.string("GOOGLE_CLIENT_SECRET", ""),
	}

	cfg.CORSOrigins = splitList(p.string("CORS_ORIGINS", cfg.ClientURL))
	cfg.GoogleCallbackURL = p.string("GOOGLE_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/api/auth/google/callback", cfg.Port))

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("config: JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if len(c.JWTRefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("config: JWT_REFRESH_SECRET must be at least %d characters", minSecretLength))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("config: JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("config: token TTLs must be positive"))
	}
	if c.UserCacheTTL < 0 {
		errs = append(errs, errors.New("config: USER_CACHE_TTL must not be negative"))
	}

	return errors.Join(errs...)
}

// parser collects every malformed value instead of stopping at the first, so
// one start-up attempt reports them all.
type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) string(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q is not a duration: %w", key, v, err))
		return def
	}
	return d
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q is not a log level", key, v))
		return def
	}
	return l
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}
