package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"golang.org/x/crypto/bcrypt"
)

// Database backends
const (
	BackendSQLite   = "sqlite"
	BackendD1       = "d1"
	BackendPostgres = "postgres"
)

// Asset strategies
const (
	AssetsLocal  = "local"
	AssetsInline = "inline"
	AssetsBucket = "bucket"
)

// Session stores
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// DefaultMaxUploadBytes caps request bodies on the write path
const DefaultMaxUploadBytes = 8 << 20

type Config struct {
	Env      string `mapstructure:"INK_ENV"`
	LogLevel string `mapstructure:"INK_LOG_LEVEL"`
	HTTPAddr string `mapstructure:"INK_HTTP_ADDR"`

	Database DatabaseConfig `mapstructure:",squash"`
	Assets   AssetConfig    `mapstructure:",squash"`
	Session  SessionConfig  `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type DatabaseConfig struct {
	Backend      string        `mapstructure:"INK_DB_BACKEND"`
	Timeout      time.Duration `mapstructure:"INK_DB_TIMEOUT"`
	SQLitePath   string        `mapstructure:"INK_SQLITE_PATH"`
	PostgresDSN  string        `mapstructure:"INK_POSTGRES_DSN"`
	PostgresPool int32         `mapstructure:"INK_POSTGRES_MAX_CONNS"`

	D1BaseURL    string `mapstructure:"INK_D1_API_BASE"`
	D1AccountID  string `mapstructure:"INK_D1_ACCOUNT_ID"`
	D1DatabaseID string `mapstructure:"INK_D1_DATABASE_ID"`
	D1APIToken   string `mapstructure:"INK_D1_API_TOKEN"`
}

type AssetConfig struct {
	Strategy       string `mapstructure:"INK_ASSET_STRATEGY"`
	UploadDir      string `mapstructure:"INK_UPLOAD_DIR"`
	MaxUploadBytes int64  `mapstructure:"INK_MAX_UPLOAD_BYTES"`

	BucketEndpoint  string `mapstructure:"INK_BUCKET_ENDPOINT"`
	BucketName      string `mapstructure:"INK_BUCKET_NAME"`
	BucketRegion    string `mapstructure:"INK_BUCKET_REGION"`
	BucketAccessKey string `mapstructure:"INK_BUCKET_ACCESS_KEY"`
	BucketSecretKey string `mapstructure:"INK_BUCKET_SECRET_KEY"`
	BucketUseSSL    bool   `mapstructure:"INK_BUCKET_USE_SSL"`
	BucketPublicURL string `mapstructure:"INK_BUCKET_PUBLIC_URL"`
}

type SessionConfig struct {
	Backend      string        `mapstructure:"INK_SESSION_BACKEND"`
	RedisURL     string        `mapstructure:"INK_REDIS_URL"`
	TTL          time.Duration `mapstructure:"INK_SESSION_TTL"`
	CookieSecure bool          `mapstructure:"INK_COOKIE_SECURE"`
}

type SecurityConfig struct {
	AdminPassword      string   `mapstructure:"INK_ADMIN_PASSWORD"`
	AdminPasswordHash  string   `mapstructure:"INK_ADMIN_PASSWORD_HASH"`
	CORSAllowedOrigins []string `mapstructure:"INK_CORS_ALLOWED_ORIGINS"`
	LoginRateLimitRPM  int      `mapstructure:"INK_LOGIN_RATE_LIMIT_RPM"`

	// passwordHash is the bcrypt hash the session gate compares against
	passwordHash []byte
}

// secrets and endpoints have no default and must still be visible to Unmarshal
var boundKeys = []string{
	"INK_POSTGRES_DSN",
	"INK_D1_ACCOUNT_ID",
	"INK_D1_DATABASE_ID",
	"INK_D1_API_TOKEN",
	"INK_BUCKET_ENDPOINT",
	"INK_BUCKET_NAME",
	"INK_BUCKET_REGION",
	"INK_BUCKET_ACCESS_KEY",
	"INK_BUCKET_SECRET_KEY",
	"INK_BUCKET_PUBLIC_URL",
	"INK_REDIS_URL",
	"INK_ADMIN_PASSWORD",
	"INK_ADMIN_PASSWORD_HASH",
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}
	if path := os.Getenv("INK_ENV_FILE"); path != "" {
		candidates = append([]string{path}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // variables already set take precedence
		}
	}
}

// Load reads configuration from the environment once; the result is not mutated afterwards.
func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("INK_ENV", "dev")
	v.SetDefault("INK_LOG_LEVEL", "")
	v.SetDefault("INK_HTTP_ADDR", ":8080")
	v.SetDefault("INK_DB_BACKEND", BackendSQLite)
	v.SetDefault("INK_DB_TIMEOUT", "5s")
	v.SetDefault("INK_SQLITE_PATH", "posts.db")
	v.SetDefault("INK_POSTGRES_MAX_CONNS", 10)
	v.SetDefault("INK_D1_API_BASE", "https://api.cloudflare.com/client/v4")
	v.SetDefault("INK_ASSET_STRATEGY", AssetsLocal)
	v.SetDefault("INK_UPLOAD_DIR", "static/uploads")
	v.SetDefault("INK_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	v.SetDefault("INK_BUCKET_USE_SSL", true)
	v.SetDefault("INK_SESSION_BACKEND", SessionMemory)
	v.SetDefault("INK_SESSION_TTL", "10m")
	v.SetDefault("INK_COOKIE_SECURE", false)
	v.SetDefault("INK_CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("INK_LOGIN_RATE_LIMIT_RPM", 30)

	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Handle array parsing for comma-separated values
	origins := splitList(v.GetString("INK_CORS_ALLOWED_ORIGINS"))
	v.Set("INK_CORS_ALLOWED_ORIGINS", origins)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Security.CORSAllowedOrigins = origins

	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Security.resolvePasswordHash(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Database.Backend = strings.ToLower(strings.TrimSpace(c.Database.Backend))
	c.Assets.Strategy = strings.ToLower(strings.TrimSpace(c.Assets.Strategy))
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Assets.MaxUploadBytes <= 0 {
		c.Assets.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

func (c *Config) validate() error {
	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("INK_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("INK_POSTGRES_DSN is required for the postgres backend")
		}
	case BackendD1:
		if c.Database.D1AccountID == "" || c.Database.D1DatabaseID == "" || c.Database.D1APIToken == "" {
			return fmt.Errorf("INK_D1_ACCOUNT_ID, INK_D1_DATABASE_ID and INK_D1_API_TOKEN are required for the d1 backend")
		}
	default:
		return fmt.Errorf("invalid INK_DB_BACKEND %q (must be sqlite, d1, or postgres)", c.Database.Backend)
	}

	switch c.Assets.Strategy {
	case AssetsLocal:
		if c.Assets.UploadDir == "" {
			return fmt.Errorf("INK_UPLOAD_DIR is required for the local asset strategy")
		}
	case AssetsInline:
	case AssetsBucket:
		if c.Assets.BucketEndpoint == "" || c.Assets.BucketName == "" {
			return fmt.Errorf("INK_BUCKET_ENDPOINT and INK_BUCKET_NAME are required for the bucket asset strategy")
		}
		if c.Assets.BucketAccessKey == "" || c.Assets.BucketSecretKey == "" {
			return fmt.Errorf("INK_BUCKET_ACCESS_KEY and INK_BUCKET_SECRET_KEY are required for the bucket asset strategy")
		}
	default:
		return fmt.Errorf("invalid INK_ASSET_STRATEGY %q (must be local, inline, or bucket)", c.Assets.Strategy)
	}

	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("INK_REDIS_URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("invalid INK_SESSION_BACKEND %q (must be memory or redis)", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("INK_SESSION_TTL must be positive")
	}

	if c.Security.AdminPassword == "" && c.Security.AdminPasswordHash == "" {
		return fmt.Errorf("INK_ADMIN_PASSWORD or INK_ADMIN_PASSWORD_HASH is required")
	}
	return nil
}

// resolvePasswordHash prefers a supplied bcrypt hash and otherwise hashes the plain password
func (s *SecurityConfig) resolvePasswordHash() error {
	if s.AdminPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(s.AdminPasswordHash)); err != nil {
			return fmt.Errorf("INK_ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err)
		}
		s.passwordHash = []byte(s.AdminPasswordHash)
		s.AdminPassword = ""
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	s.passwordHash = hash
	s.AdminPassword = ""
	return nil
}

// PasswordHash returns the bcrypt hash of the admin password
func (s *SecurityConfig) PasswordHash() []byte {
	return s.passwordHash
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
