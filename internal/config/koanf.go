// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/threadsync/config.yaml",
	"/etc/threadsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			Environment:       "development",
		},
		Store: StoreConfig{
			Path:           "/data/threadsync",
			InMemory:       false,
			SyncWrites:     false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Auth: AuthConfig{
			CookieName:     "threadsync",
			CookieSecret:   "",
			CookieLifetime: 30 * 24 * time.Hour,
		},
		Sync: SyncConfig{
			LivenessTimeout:         60 * time.Second,
			ActivityQuietPeriod:     3 * time.Second,
			ActivityRefreshInterval: time.Minute,
			StateCheckFrequency:     3 * time.Minute,
			PerThreadLimit:          20,
			RateLimit:               20,
			RateBurst:               40,
			CleanupTimeout:          5 * time.Second,
			SessionTTL:              30 * 24 * time.Hour,
			UpdateRetention:         7 * 24 * time.Hour,
			ActivityTTL:             10 * time.Minute,
		},
		PubSub: PubSubConfig{
			Backend:                 "channel",
			NATSURL:                 "nats://127.0.0.1:4222",
			EmbeddedNATS:            false,
			EmbeddedHost:            "127.0.0.1",
			EmbeddedPort:            4222,
			RedisAddr:               "127.0.0.1:6379",
			MaxReconnects:           -1,
			ReconnectWait:           2 * time.Second,
			CloseTimeout:            5 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			AllowEmptyOrigin:  true,
			UpgradeRateLimit:  30,
			UpgradeRateWindow: time.Minute,
			RateLimitDisabled: false,
			TrustForwardedFor: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Defaults returns the built-in configuration before any file or
// environment layer is applied. CookieSecret is empty and must be set.
func Defaults() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, COOKIE_SECRET -> auth.cookie_secret, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings; YAML lists are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
var envMappings = map[string]string{
	// Server
	"http_port":                "server.port",
	"http_host":                "server.host",
	"http_read_header_timeout": "server.read_header_timeout",
	"shutdown_timeout":         "server.shutdown_timeout",
	"environment":              "server.environment",

	// Store
	"store_path":             "store.path",
	"store_in_memory":        "store.in_memory",
	"store_sync_writes":      "store.sync_writes",
	"store_gc_interval":      "store.gc_interval",
	"store_gc_discard_ratio": "store.gc_discard_ratio",

	// Auth
	"cookie_name":         "auth.cookie_name",
	"cookie_secret":       "auth.cookie_secret",
	"cookie_lifetime":     "auth.cookie_lifetime",
	"min_ios_version":     "auth.min_ios_version",
	"min_android_version": "auth.min_android_version",
	"min_web_version":     "auth.min_web_version",

	// Sync protocol
	"socket_liveness_timeout":   "sync.liveness_timeout",
	"activity_quiet_period":     "sync.activity_quiet_period",
	"activity_refresh_interval": "sync.activity_refresh_interval",
	"state_check_frequency":     "sync.state_check_frequency",
	"messages_per_thread":       "sync.per_thread_limit",
	"socket_rate_limit":         "sync.rate_limit",
	"socket_rate_burst":         "sync.rate_burst",
	"socket_cleanup_timeout":    "sync.cleanup_timeout",
	"session_ttl":               "sync.session_ttl",
	"update_retention":          "sync.update_retention",
	"activity_ttl":              "sync.activity_ttl",

	// Pub/sub bridge
	"pubsub_backend":           "pubsub.backend",
	"nats_url":                 "pubsub.nats_url",
	"nats_embedded":            "pubsub.embedded_nats",
	"nats_embedded_host":       "pubsub.embedded_host",
	"nats_embedded_port":       "pubsub.embedded_port",
	"redis_addr":               "pubsub.redis_addr",
	"redis_password":           "pubsub.redis_password",
	"redis_db":                 "pubsub.redis_db",
	"pubsub_max_reconnects":    "pubsub.max_reconnects",
	"pubsub_reconnect_wait":    "pubsub.reconnect_wait",
	"pubsub_close_timeout":     "pubsub.close_timeout",
	"pubsub_breaker_threshold": "pubsub.breaker_failure_threshold",
	"pubsub_breaker_timeout":   "pubsub.breaker_timeout",

	// Security
	"cors_origins":        "security.cors_origins",
	"allow_empty_origin":  "security.allow_empty_origin",
	"upgrade_rate_limit":  "security.upgrade_rate_limit",
	"upgrade_rate_window": "security.upgrade_rate_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"trust_forwarded_for": "security.trust_forwarded_for",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so unrelated environment
// variables never leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
