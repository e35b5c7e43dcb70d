// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Auth     AuthConfig     `koanf:"auth"`
	Sync     SyncConfig     `koanf:"sync"`
	PubSub   PubSubConfig   `koanf:"pubsub"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port              int           `koanf:"port"`
	Host              string        `koanf:"host"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	Environment       string        `koanf:"environment"` // development, staging or production
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StoreConfig holds the embedded badger database settings.
type StoreConfig struct {
	Path           string        `koanf:"path"`
	InMemory       bool          `koanf:"in_memory"`
	SyncWrites     bool          `koanf:"sync_writes"`
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// AuthConfig holds session cookie settings and the client version policy.
type AuthConfig struct {
	CookieName     string        `koanf:"cookie_name"`
	CookieSecret   string        `koanf:"cookie_secret"`
	CookieLifetime time.Duration `koanf:"cookie_lifetime"`

	// Minimum supported code versions. Zero means every build is accepted.
	MinIOSVersion     int `koanf:"min_ios_version"`
	MinAndroidVersion int `koanf:"min_android_version"`
	MinWebVersion     int `koanf:"min_web_version"`
}

// SyncConfig tunes the socket protocol and its retention windows.
type SyncConfig struct {
	LivenessTimeout         time.Duration `koanf:"liveness_timeout"`
	ActivityQuietPeriod     time.Duration `koanf:"activity_quiet_period"`
	ActivityRefreshInterval time.Duration `koanf:"activity_refresh_interval"`
	StateCheckFrequency     time.Duration `koanf:"state_check_frequency"`
	PerThreadLimit          int           `koanf:"per_thread_limit"`
	RateLimit               float64       `koanf:"rate_limit"`
	RateBurst               int           `koanf:"rate_burst"`
	CleanupTimeout          time.Duration `koanf:"cleanup_timeout"`

	SessionTTL      time.Duration `koanf:"session_ttl"`
	UpdateRetention time.Duration `koanf:"update_retention"`
	ActivityTTL     time.Duration `koanf:"activity_ttl"`
}

// PubSubConfig selects the cross-instance bridge transport.
type PubSubConfig struct {
	// Backend is channel (single process), nats or redis.
	Backend       string        `koanf:"backend"`
	NATSURL       string        `koanf:"nats_url" validate:"omitempty,url"`
	EmbeddedNATS  bool          `koanf:"embedded_nats"`
	EmbeddedHost  string        `koanf:"embedded_host" validate:"omitempty,ip|hostname"`
	EmbeddedPort  int           `koanf:"embedded_port"`
	RedisAddr     string        `koanf:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// SecurityConfig holds HTTP-level protections.
type SecurityConfig struct {
	CORSOrigins []string `koanf:"cors_origins" validate:"dive,required"`
	// AllowEmptyOrigin admits upgrade requests without an Origin header.
	// Native clients never send one.
	AllowEmptyOrigin  bool          `koanf:"allow_empty_origin"`
	UpgradeRateLimit  int           `koanf:"upgrade_rate_limit"`
	UpgradeRateWindow time.Duration `koanf:"upgrade_rate_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	TrustForwardedFor bool          `koanf:"trust_forwarded_for"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes file and line in log lines.
	Caller bool `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
