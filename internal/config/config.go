package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ourchants/internal/validation"
)

// Storage drivers
const (
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// AppConfig represents the main application configuration
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`
	CORSOrigins     string        `mapstructure:"cors_origins"`
}

// Addr returns host:port for the listener
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the record store backend
type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	Table        string `mapstructure:"table"`
	ScanPageSize int    `mapstructure:"scan_page_size"`
}

// AWSConfig tunes the AWS SDK clients
type AWSConfig struct {
	Region          string        `mapstructure:"region"`
	DynamoEndpoint  string        `mapstructure:"dynamodb_endpoint"`
	S3Endpoint      string        `mapstructure:"s3_endpoint"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
}

// BlobConfig configures presigned links and derived blob URIs
type BlobConfig struct {
	DefaultBucket string        `mapstructure:"default_bucket"`
	URIBucket     string        `mapstructure:"uri_bucket"`
	URIPrefix     string        `mapstructure:"uri_prefix"`
	LinkTTL       time.Duration `mapstructure:"link_ttl"`
	RetryAfter    time.Duration `mapstructure:"retry_after"`
}

// RedisConfig represents Redis configuration. An empty Addr disables the song cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig configures the per-client request limiter
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Max        int           `mapstructure:"max"`
	Expiration time.Duration `mapstructure:"expiration"`
	Burst      int           `mapstructure:"burst"`
}

// CatalogConfig configures payload handling
type CatalogConfig struct {
	UnknownFields string `mapstructure:"unknown_fields"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// ConfigLoader loads configuration with its own viper instance
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a loader reading config.yaml from the usual
// locations and SONGS_* environment variables
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SONGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &ConfigLoader{viper: v}
}

// SetConfigFile loads from path instead of searching
func (l *ConfigLoader) SetConfigFile(path string) {
	l.viper.SetConfigFile(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.body_limit", 1024*1024)
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("storage.driver", DriverDynamoDB)
	v.SetDefault("storage.table", "songs")
	v.SetDefault("storage.scan_page_size", 0)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.dynamodb_endpoint", "")
	v.SetDefault("aws.s3_endpoint", "")
	v.SetDefault("aws.connect_timeout", 5*time.Second)
	v.SetDefault("aws.read_timeout", 5*time.Second)
	v.SetDefault("aws.max_attempts", 3)
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ourchants")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "ourchants.db")
	v.SetDefault("database.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", DefaultConnMaxIdleTime)

	v.SetDefault("blob.default_bucket", validation.DefaultURIBucket)
	v.SetDefault("blob.uri_bucket", validation.DefaultURIBucket)
	v.SetDefault("blob.uri_prefix", "songs")
	v.SetDefault("blob.link_ttl", time.Hour)
	v.SetDefault("blob.retry_after", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 2*time.Second)
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max", 100)
	v.SetDefault("rate_limit.expiration", time.Minute)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("catalog.unknown_fields", string(validation.ExcludeUnknown))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4317")
}

// Load reads the config file (if any), applies environment overrides and validates
func (l *ConfigLoader) Load() (*AppConfig, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	var config AppConfig
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration from the default locations
func LoadConfig() (*AppConfig, error) {
	return NewConfigLoader().Load()
}

// validateConfig validates the configuration values
func validateConfig(config *AppConfig) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch config.Storage.Driver {
	case DriverDynamoDB:
		if config.Storage.Table == "" {
			return fmt.Errorf("storage.table cannot be empty for the dynamodb driver")
		}
	case DriverPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database.host cannot be empty")
		}
		if config.Database.DBName == "" {
			return fmt.Errorf("database.dbname cannot be empty")
		}
	case DriverSQLite:
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path cannot be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be one of dynamodb, postgres, sqlite, memory (got %q)", config.Storage.Driver)
	}

	if config.Storage.ScanPageSize < 0 {
		return fmt.Errorf("storage.scan_page_size cannot be negative")
	}

	if config.AWS.MaxAttempts < 1 {
		return fmt.Errorf("aws.max_attempts must be at least 1")
	}

	if err := validation.ValidateBucketName(config.Blob.DefaultBucket); err != nil {
		return fmt.Errorf("blob.default_bucket: %w", err)
	}
	if config.Blob.LinkTTL <= 0 || config.Blob.LinkTTL > 7*24*time.Hour {
		return fmt.Errorf("blob.link_ttl must be positive and at most 7 days")
	}

	if config.RateLimit.Enabled && config.RateLimit.Max < 1 {
		return fmt.Errorf("rate_limit.max must be positive when rate limiting is enabled")
	}

	if _, err := validation.ParseUnknownFieldPolicy(config.Catalog.UnknownFields); err != nil {
		return fmt.Errorf("catalog.unknown_fields: %w", err)
	}

	return nil
}
