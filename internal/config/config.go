package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Family    FamilyConfig    `yaml:"family"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:""`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"5s"`
	// AllowedOrigins limits WebSocket upgrades to these host patterns.
	// Empty accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" env-separator:","`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the SQLite file used for accounts and, with the
// sqlite backend, family documents.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH" env-default:"kidquest.db"`
}

// StoreConfig selects where family documents live.
type StoreConfig struct {
	Backend         string `yaml:"backend"          env:"STORE_BACKEND"          env-default:"sqlite"`
	ProjectID       string `yaml:"project_id"       env:"FIRESTORE_PROJECT_ID"`
	CredentialsFile string `yaml:"credentials_file" env:"FIREBASE_CREDENTIALS_FILE"`
	Collection      string `yaml:"collection"       env:"FIRESTORE_COLLECTION"   env-default:"families"`
}

type AuthConfig struct {
	Provider       string        `yaml:"provider"         env:"AUTH_PROVIDER"          env-default:"local"`
	JWTSecret      string        `yaml:"jwt_secret"       env:"AUTH_JWT_SECRET"`
	JWTIssuer      string        `yaml:"jwt_issuer"       env:"AUTH_JWT_ISSUER"        env-default:"kidquest"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"AUTH_ACCESS_TOKEN_TTL"  env-default:"720h"`
	ParentTokenTTL time.Duration `yaml:"parent_token_ttl" env:"AUTH_PARENT_TOKEN_TTL"  env-default:"15m"`
}

// FamilyConfig controls the chore engine.
type FamilyConfig struct {
	Timezone        string        `yaml:"timezone"         env:"FAMILY_TIMEZONE"         env-default:"Local"`
	SeedPath        string        `yaml:"seed_path"        env:"SEED_PATH"`
	ConflictRetries int           `yaml:"conflict_retries" env:"FAMILY_CONFLICT_RETRIES" env-default:"3"`
	SessionIdle     time.Duration `yaml:"session_idle"     env:"FAMILY_SESSION_IDLE"     env-default:"24h"`

	// Location is resolved from Timezone during validation.
	Location *time.Location `yaml:"-" env:"-"`
}

type RateLimitConfig struct {
	AuthAttempts int           `yaml:"auth_attempts" env:"RATE_LIMIT_AUTH_ATTEMPTS" env-default:"10"`
	PINAttempts  int           `yaml:"pin_attempts"  env:"RATE_LIMIT_PIN_ATTEMPTS"  env-default:"5"`
	Window       time.Duration `yaml:"window"        env:"RATE_LIMIT_WINDOW"        env-default:"1m"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults. A .env file in the working directory is
// loaded into the environment first if present. The YAML path comes from
// CONFIG_PATH (fallback "./config.yaml"); a missing fallback file is fine.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field rules and resolves derived values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
	case "firestore":
		if c.Store.ProjectID == "" && c.Store.CredentialsFile == "" {
			return fmt.Errorf("store: firestore needs project_id or credentials_file")
		}
	default:
		return fmt.Errorf("store.backend must be sqlite or firestore (got %q)", c.Store.Backend)
	}

	switch c.Auth.Provider {
	case "local":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
		}
	case "firebase":
		if c.Store.ProjectID == "" && c.Store.CredentialsFile == "" {
			return fmt.Errorf("auth: firebase needs store.project_id or store.credentials_file")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters for parent tokens (got %d)", len(c.Auth.JWTSecret))
		}
	default:
		return fmt.Errorf("auth.provider must be local or firebase (got %q)", c.Auth.Provider)
	}

	if c.Family.ConflictRetries < 0 {
		return fmt.Errorf("family.conflict_retries must be >= 0 (got %d)", c.Family.ConflictRetries)
	}
	loc, err := time.LoadLocation(strings.TrimSpace(c.Family.Timezone))
	if err != nil {
		return fmt.Errorf("family.timezone: %w", err)
	}
	c.Family.Location = loc

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be > 0")
	}
	return nil
}
