package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Demo       DemoConfig       `mapstructure:"demo"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Violations string `mapstructure:"violations"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LimitsConfig tunes the evaluator itself; the per-tier caps live in the
// rate_limits table, not here.
type LimitsConfig struct {
	CheckTimeout     time.Duration `mapstructure:"check_timeout"`
	FailOpen         bool          `mapstructure:"fail_open"`
	TierCacheTTL     time.Duration `mapstructure:"tier_cache_ttl"`
	IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl"`
}

type DemoConfig struct {
	DefaultCredits      int           `mapstructure:"default_credits"`
	ReferralAward       int           `mapstructure:"referral_award"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"`
	ReferralCodeLength  int           `mapstructure:"referral_code_length"`
	ReferralCodeRetries int           `mapstructure:"referral_code_retries"`
}

type RetentionConfig struct {
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	UsageWindows    time.Duration `mapstructure:"usage_windows"`
	ViolationEvents time.Duration `mapstructure:"violation_events"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.topics.violations", "rate-limit-violations")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Evaluator defaults
	viper.SetDefault("limits.check_timeout", "250ms")
	viper.SetDefault("limits.fail_open", true)
	viper.SetDefault("limits.tier_cache_ttl", "30s")
	viper.SetDefault("limits.identity_cache_ttl", "10s")

	// Demo session defaults
	viper.SetDefault("demo.default_credits", 5)
	viper.SetDefault("demo.referral_award", 5)
	viper.SetDefault("demo.session_ttl", "168h")
	viper.SetDefault("demo.referral_code_length", 8)
	viper.SetDefault("demo.referral_code_retries", 5)

	// Retention defaults
	viper.SetDefault("retention.sweep_interval", "1h")
	viper.SetDefault("retention.usage_windows", "168h")
	viper.SetDefault("retention.violation_events", "720h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
}
