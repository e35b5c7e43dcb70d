// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/threadsync/internal/validation"
)

// MinCookieSecretLength is the shortest accepted COOKIE_SECRET.
const MinCookieSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validatePubSub(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	// Address formats are checked by struct tags once the explicit rules pass.
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be one of development, staging, production, got %q", c.Server.Environment)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.GCDiscardRatio <= 0 || c.Store.GCDiscardRatio >= 1 {
		return fmt.Errorf("STORE_GC_DISCARD_RATIO must be between 0 and 1 exclusive, got %v", c.Store.GCDiscardRatio)
	}
	if c.Store.GCInterval < 0 {
		return fmt.Errorf("STORE_GC_INTERVAL must not be negative, got %v", c.Store.GCInterval)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.CookieName == "" {
		return fmt.Errorf("COOKIE_NAME must not be empty")
	}
	if strings.ContainsAny(c.Auth.CookieName, "=;, \t") {
		return fmt.Errorf("COOKIE_NAME %q contains characters not allowed in a cookie name", c.Auth.CookieName)
	}
	if len(c.Auth.CookieSecret) < MinCookieSecretLength {
		return fmt.Errorf("COOKIE_SECRET must be at least %d characters (got %d)", MinCookieSecretLength, len(c.Auth.CookieSecret))
	}
	for name, v := range map[string]int{
		"MIN_IOS_VERSION":     c.Auth.MinIOSVersion,
		"MIN_ANDROID_VERSION": c.Auth.MinAndroidVersion,
		"MIN_WEB_VERSION":     c.Auth.MinWebVersion,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	s := c.Sync
	durations := []struct {
		env string
		val interface{ Seconds() float64 }
	}{
		{"SOCKET_LIVENESS_TIMEOUT", s.LivenessTimeout},
		{"ACTIVITY_QUIET_PERIOD", s.ActivityQuietPeriod},
		{"ACTIVITY_REFRESH_INTERVAL", s.ActivityRefreshInterval},
		{"STATE_CHECK_FREQUENCY", s.StateCheckFrequency},
		{"SOCKET_CLEANUP_TIMEOUT", s.CleanupTimeout},
	}
	for _, d := range durations {
		if d.val.Seconds() <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.env, d.val)
		}
	}
	if s.ActivityQuietPeriod >= s.LivenessTimeout {
		return fmt.Errorf("ACTIVITY_QUIET_PERIOD (%v) must be shorter than SOCKET_LIVENESS_TIMEOUT (%v)", s.ActivityQuietPeriod, s.LivenessTimeout)
	}
	if s.PerThreadLimit < 1 {
		return fmt.Errorf("MESSAGES_PER_THREAD must be at least 1, got %d", s.PerThreadLimit)
	}
	if s.RateLimit <= 0 || s.RateBurst < 1 {
		return fmt.Errorf("SOCKET_RATE_LIMIT and SOCKET_RATE_BURST must be positive, got %v and %d", s.RateLimit, s.RateBurst)
	}
	if s.SessionTTL < 0 || s.UpdateRetention < 0 || s.ActivityTTL < 0 {
		return fmt.Errorf("SESSION_TTL, UPDATE_RETENTION and ACTIVITY_TTL must not be negative")
	}
	return nil
}

func (c *Config) validatePubSub() error {
	p := c.PubSub
	switch p.Backend {
	case "channel":
	case "nats":
		if p.NATSURL == "" && !p.EmbeddedNATS {
			return fmt.Errorf("NATS_URL is required when PUBSUB_BACKEND=nats unless NATS_EMBEDDED=true")
		}
		if p.EmbeddedNATS && (p.EmbeddedPort < 1 || p.EmbeddedPort > 65535) {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535, got %d", p.EmbeddedPort)
		}
	case "redis":
		if p.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when PUBSUB_BACKEND=redis")
		}
	default:
		return fmt.Errorf("PUBSUB_BACKEND must be one of channel, nats, redis, got %q", p.Backend)
	}
	if p.BreakerFailureThreshold == 0 {
		return fmt.Errorf("PUBSUB_BREAKER_THRESHOLD must be at least 1")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.UpgradeRateLimit < 1 {
		return fmt.Errorf("UPGRADE_RATE_LIMIT must be at least 1, got %d", c.Security.UpgradeRateLimit)
	}
	if c.Security.UpgradeRateWindow <= 0 {
		return fmt.Errorf("UPGRADE_RATE_WINDOW must be positive, got %v", c.Security.UpgradeRateWindow)
	}
	if c.IsProduction() {
		for _, o := range c.Security.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain * when ENVIRONMENT=production")
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
