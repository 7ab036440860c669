package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Gemini   GeminiConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	BodyLimitMB int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Path string
}

type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TargetLanguage string
	Timeout        int // seconds, per attempt
	MaxRetries     int
	RetryBaseMS    int
}

type WorkerConfig struct {
	Concurrency int
	JobTTLHours int
}

// Load reads configuration from config.yaml (optional), environment and defaults.
func Load() (*Config, error) {
	readSecret("GEMINI_API_KEY")
	readSecret("REDIS_PASSWORD")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = v.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = v.BindEnv("gemini.target_language", "GEMINI_TARGET_LANGUAGE")
	_ = v.BindEnv("gemini.timeout", "GEMINI_TIMEOUT")
	_ = v.BindEnv("gemini.max_retries", "GEMINI_MAX_RETRIES")
	_ = v.BindEnv("gemini.retry_base_ms", "GEMINI_RETRY_BASE_MS")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.job_ttl_hours", "JOB_TTL_HOURS")

	v.SetDefault("server.port", "3001")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("server.body_limit_mb", 50)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.path", "data/history.db")

	// Gemini defaults
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-3-pro-image-preview")
	v.SetDefault("gemini.target_language", "Korean")
	v.SetDefault("gemini.timeout", 120)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_base_ms", 1000)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.job_ttl_hours", 24)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			LogFormat:   v.GetString("server.log_format"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Gemini: GeminiConfig{
			APIKey:         v.GetString("gemini.api_key"),
			BaseURL:        v.GetString("gemini.base_url"),
			Model:          v.GetString("gemini.model"),
			TargetLanguage: v.GetString("gemini.target_language"),
			Timeout:        v.GetInt("gemini.timeout"),
			MaxRetries:     v.GetInt("gemini.max_retries"),
			RetryBaseMS:    v.GetInt("gemini.retry_base_ms"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			JobTTLHours: v.GetInt("worker.job_ttl_hours"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Server.LogLevel)
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Server.LogFormat)
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini.timeout must be positive")
	}
	if c.Gemini.MaxRetries < 0 {
		return fmt.Errorf("gemini.max_retries must not be negative")
	}
	if c.Gemini.RetryBaseMS <= 0 {
		return fmt.Errorf("gemini.retry_base_ms must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Worker.JobTTLHours <= 0 {
		return fmt.Errorf("worker.job_ttl_hours must be positive")
	}
	return nil
}
