package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SessionBuffer     int           `mapstructure:"session_buffer" yaml:"session_buffer"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
}

// DirectoryConfig controls room access checks.
type DirectoryConfig struct {
	EnforceMembership bool `mapstructure:"enforce_membership" yaml:"enforce_membership"`
}

// StoreConfig selects the key-value backend for history and rate limits.
type StoreConfig struct {
	Driver     string        `mapstructure:"driver" yaml:"driver"`
	RedisURL   string        `mapstructure:"redis_url" yaml:"redis_url"`
	BadgerPath string        `mapstructure:"badger_path" yaml:"badger_path"`
	Namespace  string        `mapstructure:"namespace" yaml:"namespace"`
	OpTimeout  time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// HistoryConfig bounds the per-room log.
type HistoryConfig struct {
	ReplayLimit int `mapstructure:"replay_limit" yaml:"replay_limit"`
	Retain      int `mapstructure:"retain" yaml:"retain"`
}

// BroadcastConfig selects how messages reach other processes.
type BroadcastConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
	NATSURL  string `mapstructure:"nats_url" yaml:"nats_url"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBadger = "badger"

	BroadcastLocal = "local"
	BroadcastRedis = "redis"
	BroadcastNATS  = "nats"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageBytes:   64 << 10,
		SessionBuffer:     64,
		LogLevel:          "info",
		LogFormat:         "console",
		JWTSecret:         "change-me",
		JWTIssuer:         "chatrelay",
		JWTAudience:       "chatrelay",
		JWTTTL:            24 * time.Hour,
		DatabasePath:      "chatrelay.db",
		Store: StoreConfig{
			Driver:     StoreRedis,
			RedisURL:   "redis://localhost:6379/0",
			BadgerPath: "data/badger",
			OpTimeout:  2 * time.Second,
		},
		History: HistoryConfig{
			ReplayLimit: 100,
		},
		Broadcast: BroadcastConfig{
			Driver: BroadcastLocal,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the top-level server settings exposed as CLI flags are merged.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Broadcast.Driver != "" {
		c.Broadcast.Driver = other.Broadcast.Driver
	}
}

// Validate rejects unknown backends and unusable limits.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreBadger:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errMissing("store.redis_url")
		}
	default:
		return errInvalid("store.driver", c.Store.Driver)
	}

	switch c.Broadcast.Driver {
	case BroadcastLocal:
	case BroadcastRedis:
		if c.Broadcast.RedisURL == "" && c.Store.RedisURL == "" {
			return errMissing("broadcast.redis_url")
		}
	case BroadcastNATS:
		if c.Broadcast.NATSURL == "" {
			return errMissing("broadcast.nats_url")
		}
	default:
		return errInvalid("broadcast.driver", c.Broadcast.Driver)
	}

	if c.JWTSecret == "" {
		return errMissing("jwt_secret")
	}
	if c.JWTTTL <= 0 {
		return errInvalid("jwt_ttl", c.JWTTTL.String())
	}
	if c.History.ReplayLimit < 0 || c.History.Retain < 0 {
		return errInvalid("history", "negative limit")
	}
	return nil
}
