package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Sync         SyncConfig
	Notification NotificationConfig
	Instances    []InstanceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SyncConfig defines sync trigger and ingestion parameters.
type SyncConfig struct {
	Secret             string
	TokenTTLMinutes    int
	GlpiTimeoutSeconds int
	RequireSecret      bool
}

// NotificationConfig holds the alert webhook endpoint.
type NotificationConfig struct {
	WebhookURL string
}

// InstanceConfig carries one GLPI instance's connection and credential
// material. Constructed once per run; never persisted.
type InstanceConfig struct {
	Name              string
	BaseURL           string
	APIBaseURL        string
	AppToken          string
	UserToken         string
	OAuthClientID     string
	OAuthClientSecret string
	Username          string
	Password          string
}

// instanceNames are the two deployments the reference setup syncs.
var instanceNames = []string{"PETA", "GMX"}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "glpi-sla-sync"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 300),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Sync: SyncConfig{
			Secret:             os.Getenv("SYNC_SECRET"),
			TokenTTLMinutes:    getEnvAsInt("SYNC_TOKEN_TTL_MINUTES", 60),
			GlpiTimeoutSeconds: getEnvAsInt("GLPI_TIMEOUT_SECONDS", 30),
			RequireSecret:      getEnvAsBool("SYNC_REQUIRE_SECRET", false),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if cfg.Sync.RequireSecret && cfg.Sync.Secret == "" {
		return nil, fmt.Errorf("SYNC_SECRET is required when SYNC_REQUIRE_SECRET is set")
	}

	cfg.Instances = loadInstances()
	if len(cfg.Instances) == 0 {
		return nil, fmt.Errorf("no GLPI instance configured; set GLPI_<NAME>_URL and GLPI_<NAME>_API_URL")
	}

	return cfg, nil
}

// loadInstances builds the per-instance blocks. An instance missing its
// URLs is skipped, not an error: one misconfigured instance must never
// block the other.
func loadInstances() []InstanceConfig {
	fallbackUser := os.Getenv("GLPI_USER_ADM")
	fallbackPassword := os.Getenv("GLPI_USER_ADM_PASSWORD")

	var instances []InstanceConfig
	for _, name := range instanceNames {
		prefix := "GLPI_" + name + "_"
		baseURL := os.Getenv(prefix + "URL")
		apiURL := os.Getenv(prefix + "API_URL")
		if baseURL == "" || apiURL == "" {
			continue
		}
		instances = append(instances, InstanceConfig{
			Name:              name,
			BaseURL:           baseURL,
			APIBaseURL:        apiURL,
			AppToken:          os.Getenv(prefix + "APP_TOKEN"),
			UserToken:         os.Getenv(prefix + "USER_TOKEN"),
			OAuthClientID:     os.Getenv(prefix + "OAUTH_CLIENT_ID"),
			OAuthClientSecret: os.Getenv(prefix + "OAUTH_CLIENT_SECRET"),
			Username:          getEnv(prefix+"USER", fallbackUser),
			Password:          getEnv(prefix+"PASSWORD", fallbackPassword),
		})
	}
	return instances
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// GlpiTimeout returns the per-request timeout for GLPI calls.
func (s SyncConfig) GlpiTimeout() time.Duration {
	return time.Duration(s.GlpiTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
