package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Quiz      QuizConfig      `mapstructure:"quiz"`
	Client    ClientConfig    `mapstructure:"client"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	Mode           string        `mapstructure:"mode"` // debug|release
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // memory|sqlite|postgres
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	HMACSecret         string        `mapstructure:"hmac_secret"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	AllowClaimFallback bool          `mapstructure:"allow_claim_fallback"`
	AdminUser          string        `mapstructure:"admin_user"`
	AdminPassHash      string        `mapstructure:"admin_pass_hash"` // bcrypt
}

type StorageConfig struct {
	Type           string `mapstructure:"type"` // none|fs|minio
	LocalPath      string `mapstructure:"local_path"`
	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`
}

type QuizConfig struct {
	RevealPolicy    string        `mapstructure:"reveal_policy"` // always|after_close|never
	SubmitGrace     time.Duration `mapstructure:"submit_grace"`
	EnforceRoster   bool          `mapstructure:"enforce_roster"`
	MaxEditDistance int           `mapstructure:"max_edit_distance"`
}

// ClientConfig is read by quizctl.
type ClientConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	LoadTimeout   time.Duration `mapstructure:"load_timeout"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.hmac_secret", "dev-secret-change-me")
	v.SetDefault("auth.token_ttl", 8*time.Hour)
	v.SetDefault("auth.allow_claim_fallback", true)
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_pass_hash", "")

	v.SetDefault("storage.type", "fs")
	v.SetDefault("storage.local_path", "./data")
	v.SetDefault("storage.minio_endpoint", "localhost:9000")
	v.SetDefault("storage.minio_access_key", "")
	v.SetDefault("storage.minio_secret_key", "")
	v.SetDefault("storage.minio_bucket", "quiz-receipts")
	v.SetDefault("storage.minio_use_ssl", false)

	v.SetDefault("quiz.reveal_policy", "always")
	v.SetDefault("quiz.submit_grace", 5*time.Minute)
	v.SetDefault("quiz.enforce_roster", false)
	v.SetDefault("quiz.max_edit_distance", 0)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.load_timeout", 30*time.Second)
	v.SetDefault("client.submit_timeout", 60*time.Second)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("rate_limit.max_requests", 30)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "quizd")
	v.SetDefault("tracing.collector_endpoint", "http://localhost:14268/api/traces")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Load reads config.yaml from path when present, then the environment.
// Every key is reachable as QUIZCORE_<SECTION>_<KEY>; the short names bound
// below are kept for deployments that predate the prefix.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.addr", "QUIZCORE_SERVER_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("server.mode", "QUIZCORE_SERVER_MODE", "SERVER_MODE")
	_ = v.BindEnv("database.driver", "QUIZCORE_DATABASE_DRIVER", "DB_DRIVER")
	_ = v.BindEnv("database.dsn", "QUIZCORE_DATABASE_DSN", "DB_DSN")
	_ = v.BindEnv("auth.hmac_secret", "QUIZCORE_AUTH_HMAC_SECRET", "AUTH_HMAC_SECRET")
	_ = v.BindEnv("storage.type", "QUIZCORE_STORAGE_TYPE", "BLOB_DRIVER")
	_ = v.BindEnv("storage.local_path", "QUIZCORE_STORAGE_LOCAL_PATH", "BLOB_BASE_PATH")
	_ = v.BindEnv("storage.minio_endpoint", "QUIZCORE_STORAGE_MINIO_ENDPOINT", "MINIO_ENDPOINT")
	_ = v.BindEnv("storage.minio_access_key", "QUIZCORE_STORAGE_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.minio_secret_key", "QUIZCORE_STORAGE_MINIO_SECRET_KEY", "MINIO_SECRET_KEY")
	_ = v.BindEnv("storage.minio_bucket", "QUIZCORE_STORAGE_MINIO_BUCKET", "MINIO_BUCKET")
	_ = v.BindEnv("tracing.enabled", "QUIZCORE_TRACING_ENABLED", "TRACING_ENABLED")
	_ = v.BindEnv("tracing.collector_endpoint", "QUIZCORE_TRACING_COLLECTOR_ENDPOINT", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Mode == "release" && len(c.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth secret is too short (%d chars), must be at least 32 characters in release mode", len(c.Auth.HMACSecret))
	}
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Quiz.RevealPolicy {
	case "always", "after_close", "never":
	default:
		return fmt.Errorf("unknown reveal policy %q", c.Quiz.RevealPolicy)
	}
	return nil
}
