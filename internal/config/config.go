package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Session    SessionConfig    `mapstructure:"session"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Version      string        `mapstructure:"version"`
}

type OpenAIConfig struct {
	APIKeys         []string      `mapstructure:"api_keys"`
	BaseURL         string        `mapstructure:"base_url"`
	ChatModel       string        `mapstructure:"chat_model"`
	CaptionModel    string        `mapstructure:"caption_model"`
	SuggestionModel string        `mapstructure:"suggestion_model"`
	Temperature     float32       `mapstructure:"temperature"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type RetrievalConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Directory string  `mapstructure:"directory"`
	TopK      int     `mapstructure:"top_k"`
	FetchK    int     `mapstructure:"fetch_k"`
	Lambda    float64 `mapstructure:"lambda"`
}

type SessionConfig struct {
	MaxHistory int `mapstructure:"max_history"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	// Enable environment variable substitution
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Set environment variable overrides
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.redis.db", "REDIS_DB")
	viper.BindEnv("storage.sqlite.path", "SQLITE_PATH")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := viper.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	// API keys come from the environment, comma separated; a single
	// OPENAI_API_KEY is accepted as a pool of one
	if keys := os.Getenv("OPENAI_API_KEYS"); keys != "" {
		config.OpenAI.APIKeys = nil
		for _, key := range strings.Split(keys, ",") {
			key = strings.TrimSpace(key)
			if key != "" {
				config.OpenAI.APIKeys = append(config.OpenAI.APIKeys, key)
			}
		}
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.OpenAI.APIKeys = []string{key}
	}

	// Validate required fields
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8005)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.version", "1.0.0")
	viper.SetDefault("openai.chat_model", "gpt-4o")
	viper.SetDefault("openai.caption_model", "gpt-4o")
	viper.SetDefault("openai.suggestion_model", "gpt-4o")
	viper.SetDefault("openai.temperature", 0.1)
	viper.SetDefault("openai.request_timeout", "120s")
	viper.SetDefault("retrieval.enabled", true)
	viper.SetDefault("retrieval.directory", "knowledge")
	viper.SetDefault("retrieval.top_k", 10)
	viper.SetDefault("retrieval.fetch_k", 30)
	viper.SetDefault("retrieval.lambda", 0.5)
	viper.SetDefault("session.max_history", 20)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.backoff", "1s")
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "klyraai.db")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", "1h")
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.requests_per_minute", 30)
	viper.SetDefault("rate_limit.burst", 5)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("monitoring.metrics.enabled", false)
	viper.SetDefault("monitoring.metrics.port", 9090)
	viper.SetDefault("monitoring.metrics.path", "/metrics")
	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en"})
	viper.SetDefault("i18n.directory", "configs/i18n")
}

func validateConfig(cfg *Config) error {
	if len(cfg.OpenAI.APIKeys) == 0 {
		return fmt.Errorf("at least one OpenAI API key is required")
	}
	if cfg.Session.MaxHistory <= 0 {
		return fmt.Errorf("session.max_history must be positive")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	switch cfg.Storage.Type {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}
