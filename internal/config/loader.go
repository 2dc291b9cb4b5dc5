package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "CHATRELAY"
	envConfigDefaultPath = "CHATRELAY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so nested values can be overridden from
// the environment, e.g. CHATRELAY_STORE_DRIVER.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"addr":                         cfg.Addr,
		"read_header_timeout":          cfg.ReadHeaderTimeout,
		"shutdown_timeout":             cfg.ShutdownTimeout,
		"write_timeout":                cfg.WriteTimeout,
		"max_message_bytes":            cfg.MaxMessageBytes,
		"session_buffer":               cfg.SessionBuffer,
		"log_level":                    cfg.LogLevel,
		"log_format":                   cfg.LogFormat,
		"jwt_secret":                   cfg.JWTSecret,
		"jwt_issuer":                   cfg.JWTIssuer,
		"jwt_audience":                 cfg.JWTAudience,
		"jwt_ttl":                      cfg.JWTTTL,
		"database_path":                cfg.DatabasePath,
		"directory.enforce_membership": cfg.Directory.EnforceMembership,
		"store.driver":                 cfg.Store.Driver,
		"store.redis_url":              cfg.Store.RedisURL,
		"store.badger_path":            cfg.Store.BadgerPath,
		"store.namespace":              cfg.Store.Namespace,
		"store.op_timeout":             cfg.Store.OpTimeout,
		"history.replay_limit":         cfg.History.ReplayLimit,
		"history.retain":               cfg.History.Retain,
		"broadcast.driver":             cfg.Broadcast.Driver,
		"broadcast.redis_url":          cfg.Broadcast.RedisURL,
		"broadcast.nats_url":           cfg.Broadcast.NATSURL,
		"broadcast.prefix":             cfg.Broadcast.Prefix,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
