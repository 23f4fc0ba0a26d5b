/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"

	// MaxProxyCheckTimeout bounds the anonymizing-network lookup.
	MaxProxyCheckTimeout = 5 * time.Second
)

// Config captures everything required to start the verifier.
type Config struct {
	Port              int           `env:"PORT" envDefault:"3000"`
	PublicBaseURL     string        `env:"DOMAIN,required,notEmpty"`
	VerifiedRoleID    string        `env:"VERIFIED_ROLE_ID,required,notEmpty"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"5m"`
	PlatformTimeout   time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"10s"`
	TrustForwardedFor bool          `env:"TRUST_FORWARDED_FOR" envDefault:"true"`
	TelemetryEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Discord    DiscordConfig
	Challenge  ChallengeConfig  `envPrefix:"HCAPTCHA_"`
	ProxyCheck ProxyCheckConfig `envPrefix:"PROXYCHECK_"`
	Reputation ReputationConfig `envPrefix:"REPUTATION_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Audit      AuditConfig      `envPrefix:"AUDIT_"`

	Logger *log.Logger `env:"-"`
}

type DiscordConfig struct {
	Token          string `env:"DISCORD_TOKEN,required,notEmpty"`
	EmbedChannelID string `env:"EMBED_CHANNEL_ID,required,notEmpty"`
	LogsChannelID  string `env:"LOGS_CHANNEL_ID,required,notEmpty"`
}

// ChallengeConfig configures the human-challenge validator.
type ChallengeConfig struct {
	SiteKey   string        `env:"SITE_KEY,required,notEmpty"`
	SecretKey string        `env:"SECRET_KEY,required,notEmpty"`
	VerifyURL string        `env:"VERIFY_URL" envDefault:"https://api.hcaptcha.com/siteverify"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Logger    *log.Logger   `env:"-"`
}

// ProxyCheckConfig configures the anonymizing-network detector.
// An empty Key disables the detector.
type ProxyCheckConfig struct {
	Key     string        `env:"KEY"`
	BaseURL string        `env:"URL" envDefault:"https://proxycheck.io/v2/"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
	Logger  *log.Logger   `env:"-"`
}

type ReputationConfig struct {
	Backend    string `env:"BACKEND" envDefault:"file"`
	Path       string `env:"PATH" envDefault:"ip.json"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"reputation.db"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Key      string `env:"KEY" envDefault:"reputation"`
}

type AuditConfig struct {
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"64"`
	HashSalt  string `env:"HASH_SALT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the configuration, wiring logger into the sub-configs.
func Load(logger *log.Logger) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Reputation.Backend = strings.ToLower(strings.TrimSpace(cfg.Reputation.Backend))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if logger == nil {
		logger = log.Default()
	}
	cfg.Logger = logger
	cfg.Challenge.Logger = logger
	cfg.ProxyCheck.Logger = logger
	return cfg, nil
}

// Validate rejects values that parse but cannot work.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("DOMAIN must be an absolute http(s) URL, got %q", c.PublicBaseURL))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	if c.PlatformTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PLATFORM_TIMEOUT must be positive, got %s", c.PlatformTimeout))
	}
	if c.Challenge.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("HCAPTCHA_TIMEOUT must be positive, got %s", c.Challenge.Timeout))
	}
	if c.ProxyCheck.Timeout <= 0 || c.ProxyCheck.Timeout > MaxProxyCheckTimeout {
		errs = append(errs, fmt.Errorf("PROXYCHECK_TIMEOUT must be within (0, %s], got %s", MaxProxyCheckTimeout, c.ProxyCheck.Timeout))
	}
	switch strings.ToLower(c.Reputation.Backend) {
	case BackendFile, BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("REPUTATION_BACKEND must be one of file, sqlite, redis, got %q", c.Reputation.Backend))
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_QUEUE_SIZE must be positive, got %d", c.Audit.QueueSize))
	}

	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// VerifyLink builds the public redemption URL for token.
func (c Config) VerifyLink(token string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/verify/" + url.PathEscape(token)
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
