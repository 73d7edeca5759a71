package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine daemon. Values are read by
// viper from a config file or environment variables.
type Config struct {
	AppName    string          `mapstructure:"APP_NAME"`
	AppVersion string          `mapstructure:"APP_VERSION"`
	LogLevel   string          `mapstructure:"LOG_LEVEL"`
	Engine     EngineConfig    `mapstructure:"ENGINE"`
	APIServer  APIServerConfig `mapstructure:"API_SERVER"`
	Remote     RemoteConfig    `mapstructure:"REMOTE"`
	Kafka      KafkaConfig     `mapstructure:"KAFKA"`
	Redis      RedisConfig     `mapstructure:"REDIS"`
	Database   DatabaseConfig  `mapstructure:"DATABASE"`
	Auth       AuthConfig      `mapstructure:"AUTH"`
}

// EngineConfig holds the reconciliation engine's tuning knobs.
type EngineConfig struct {
	// CurrentUserID is the id of the user this engine instance serves.
	// Recommendation candidates matching it are always rejected.
	CurrentUserID string `mapstructure:"CURRENT_USER_ID"`
	// SettleDelay is the user-visible confirmation window between a
	// successful remote call and the final state commit.
	SettleDelay time.Duration `mapstructure:"SETTLE_DELAY"`
	// DebounceWindow delays a search fetch after each query change.
	DebounceWindow          time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	ConnectionsPageSize     int           `mapstructure:"CONNECTIONS_PAGE_SIZE"`
	RecommendationsPageSize int           `mapstructure:"RECOMMENDATIONS_PAGE_SIZE"`
	GlobalSearchLimit       int           `mapstructure:"GLOBAL_SEARCH_LIMIT"`
}

// APIServerConfig holds the HTTP surface configuration.
type APIServerConfig struct {
	Host string     `mapstructure:"HOST"`
	Port string     `mapstructure:"PORT"`
	CORS CORSConfig `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RemoteConfig points at the directory API backend.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"BASE_URL"`
	Timeout time.Duration `mapstructure:"TIMEOUT"`
}

// KafkaConfig holds configuration for the event channel.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"BROKERS"`
	ClientID string   `mapstructure:"CLIENT_ID"`
	// ConnectionEventsTopic carries received/accepted/rejected events from
	// the backend.
	ConnectionEventsTopic string `mapstructure:"CONNECTION_EVENTS_TOPIC"`
	// ActionAuditTopic receives a record of every settled or rolled-back
	// command, for downstream consumers.
	ActionAuditTopic string `mapstructure:"ACTION_AUDIT_TOPIC"`
	ConsumerGroup    string `mapstructure:"CONSUMER_GROUP"`
	Protocol         string `mapstructure:"PROTOCOL"`
}

// RedisConfig holds configuration for Redis (event delivery dedup).
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
	// DedupTTL bounds how long processed event delivery ids are remembered.
	DedupTTL time.Duration `mapstructure:"DEDUP_TTL"`
}

// DatabaseConfig holds configuration for the warm-start profile cache.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"ENABLED"`
	Type     string `mapstructure:"TYPE"`
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
}

// AuthConfig carries the session the engine acts under.
type AuthConfig struct {
	SessionToken string `mapstructure:"SESSION_TOKEN"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "pronet-engined")
	v.SetDefault("APP_VERSION", "0.0.1")
	v.SetDefault("LOG_LEVEL", "info")

	// Engine defaults
	v.SetDefault("ENGINE.CURRENT_USER_ID", "")
	v.SetDefault("ENGINE.SETTLE_DELAY", 1500*time.Millisecond)
	v.SetDefault("ENGINE.DEBOUNCE_WINDOW", 500*time.Millisecond)
	v.SetDefault("ENGINE.CONNECTIONS_PAGE_SIZE", 20)
	v.SetDefault("ENGINE.RECOMMENDATIONS_PAGE_SIZE", 10)
	v.SetDefault("ENGINE.GLOBAL_SEARCH_LIMIT", 25)

	// APIServer defaults
	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8082")
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300)

	// Remote defaults
	v.SetDefault("REMOTE.BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("REMOTE.TIMEOUT", 10*time.Second)

	// Kafka defaults
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "pronet-engined")
	v.SetDefault("KAFKA.CONNECTION_EVENTS_TOPIC", "pronet-connection-events")
	v.SetDefault("KAFKA.ACTION_AUDIT_TOPIC", "pronet-action-audit")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "pronet-engine-group")

	// Redis defaults
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.DEDUP_TTL", 24*time.Hour)

	// Database defaults (profile cache)
	v.SetDefault("DATABASE.ENABLED", false)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "pronet_cache")
	v.SetDefault("DATABASE.SSL_MODE", "disable")

	// Auth defaults
	v.SetDefault("AUTH.SESSION_TOKEN", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return config, err
}
