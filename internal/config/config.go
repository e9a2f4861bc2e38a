package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "WHITEBOARD"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultDatabaseDriver     = DriverSQLite
	defaultDatabasePath       = "whiteboard.db"
	defaultMongoDatabase      = "whiteboard"
	defaultTokenTTLMinutes    = 24 * 60
	defaultRedisChannelPrefix = "whiteboard:board:"
	defaultKafkaTopic         = "whiteboard.board-activity"
	defaultKafkaQueueSize     = 1024
	defaultKafkaWorkers       = 2
	defaultKafkaMaxRetry      = 3
	defaultSendBuffer         = 64
	defaultUpdateRate         = 60
	defaultUpdateBurst        = 120
)

// Supported values for database.driver.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
)

// AppConfig captures runtime configuration for the sync server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	SigningSecret string
	TokenIssuer   string
	TokenTTL      time.Duration

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	MongoURI       string
	MongoDatabase  string

	RedisAddress       string
	RedisPassword      string
	RedisChannelPrefix string

	KafkaBrokers   []string
	KafkaTopic     string
	KafkaQueueSize int
	KafkaWorkers   int
	KafkaMaxRetry  int

	UpdateRatePerSecond float64
	UpdateBurst         int
	SendBuffer          int
}

// RelayEnabled reports whether cross-instance fan-out through Redis is configured.
func (c AppConfig) RelayEnabled() bool {
	return c.RedisAddress != ""
}

// ActivityEnabled reports whether the Kafka activity stream is configured.
func (c AppConfig) ActivityEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("cors.allowed_origins", "*")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("mongo.database", defaultMongoDatabase)
	configViper.SetDefault("redis.channel_prefix", defaultRedisChannelPrefix)
	configViper.SetDefault("kafka.topic", defaultKafkaTopic)
	configViper.SetDefault("kafka.queue_size", defaultKafkaQueueSize)
	configViper.SetDefault("kafka.workers", defaultKafkaWorkers)
	configViper.SetDefault("kafka.max_retry", defaultKafkaMaxRetry)
	configViper.SetDefault("sync.update_rate_per_second", defaultUpdateRate)
	configViper.SetDefault("sync.update_burst", defaultUpdateBurst)
	configViper.SetDefault("sync.send_buffer", defaultSendBuffer)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),

		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   strings.TrimSpace(configViper.GetString("auth.issuer")),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,

		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:    strings.TrimSpace(configViper.GetString("database.dsn")),
		MongoURI:       strings.TrimSpace(configViper.GetString("mongo.uri")),
		MongoDatabase:  strings.TrimSpace(configViper.GetString("mongo.database")),

		RedisAddress:       strings.TrimSpace(configViper.GetString("redis.address")),
		RedisPassword:      configViper.GetString("redis.password"),
		RedisChannelPrefix: configViper.GetString("redis.channel_prefix"),

		KafkaBrokers:   splitList(configViper.GetString("kafka.brokers")),
		KafkaTopic:     strings.TrimSpace(configViper.GetString("kafka.topic")),
		KafkaQueueSize: configViper.GetInt("kafka.queue_size"),
		KafkaWorkers:   configViper.GetInt("kafka.workers"),
		KafkaMaxRetry:  configViper.GetInt("kafka.max_retry"),

		UpdateRatePerSecond: configViper.GetFloat64("sync.update_rate_per_second"),
		UpdateBurst:         configViper.GetInt("sync.update_burst"),
		SendBuffer:          configViper.GetInt("sync.send_buffer"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMySQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required for the mysql driver")
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("mongo.uri and mongo.database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseDriver)
	}
	if c.ActivityEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("sync.send_buffer must be positive")
	}
	if c.UpdateRatePerSecond < 0 || c.UpdateBurst < 0 {
		return fmt.Errorf("sync rate limits must not be negative")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
