package config

import (
	"fmt"
	"time"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	StorageDriver string `mapstructure:"storage_driver" yaml:"storage_driver"`
	DatabasePath  string `mapstructure:"database_path" yaml:"database_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`

	// Redis presence mirror; disabled when RedisAddr is empty.
	RedisAddr       string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db" yaml:"redis_db"`
	PresenceKey     string        `mapstructure:"presence_key" yaml:"presence_key"`
	PresenceChannel string        `mapstructure:"presence_channel" yaml:"presence_channel"`
	PresenceTTL     time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	InboxSize          int           `mapstructure:"inbox_size" yaml:"inbox_size"`
	OutboxSize         int           `mapstructure:"outbox_size" yaml:"outbox_size"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	AutoMarkSeen       bool          `mapstructure:"auto_mark_seen" yaml:"auto_mark_seen"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",

		StorageDriver: DriverSQLite,
		DatabasePath:  "wirechat-dm.db",
		MongoDatabase: "wirechat",

		PresenceKey:     "wirechat:online",
		PresenceChannel: "wirechat:presence",
		PresenceTTL:     time.Minute,

		JWTSecret:   "change-me",
		JWTIssuer:   "wirechat-dm",
		JWTAudience: "wirechat-dm",
		JWTTTL:      7 * 24 * time.Hour,

		MaxMessageBytes:    1 << 20,
		WriteTimeout:       10 * time.Second,
		InboxSize:          16,
		OutboxSize:         64,
		RateLimitPerMinute: 120,
		AutoMarkSeen:       true,
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database_path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("mongo_uri and mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage_driver %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("jwt_ttl must be positive")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// AutoMarkSeen is left alone since its zero value is meaningful.
func (c *Config) UpdateFrom(other Config) {
	setString(&c.Addr, other.Addr)
	setDuration(&c.ReadHeaderTimeout, other.ReadHeaderTimeout)
	setDuration(&c.ShutdownTimeout, other.ShutdownTimeout)
	setString(&c.LogLevel, other.LogLevel)
	setString(&c.LogFormat, other.LogFormat)

	setString(&c.StorageDriver, other.StorageDriver)
	setString(&c.DatabasePath, other.DatabasePath)
	setString(&c.MongoURI, other.MongoURI)
	setString(&c.MongoDatabase, other.MongoDatabase)

	setString(&c.RedisAddr, other.RedisAddr)
	setString(&c.RedisPassword, other.RedisPassword)
	if other.RedisDB != 0 {
		c.RedisDB = other.RedisDB
	}
	setString(&c.PresenceKey, other.PresenceKey)
	setString(&c.PresenceChannel, other.PresenceChannel)
	setDuration(&c.PresenceTTL, other.PresenceTTL)

	setString(&c.JWTSecret, other.JWTSecret)
	setString(&c.JWTIssuer, other.JWTIssuer)
	setString(&c.JWTAudience, other.JWTAudience)
	setDuration(&c.JWTTTL, other.JWTTTL)

	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	setDuration(&c.WriteTimeout, other.WriteTimeout)
	if other.InboxSize != 0 {
		c.InboxSize = other.InboxSize
	}
	if other.OutboxSize != 0 {
		c.OutboxSize = other.OutboxSize
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
