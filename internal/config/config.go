// Package config provides YAML-based configuration loading for RapidAid.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/rapidaid/internal/lifecycle"
)

// Environment variables that override secrets from the YAML file.
const (
	EnvDBPassword    = "RAPIDAID_DB_PASSWORD"
	EnvRedisPassword = "RAPIDAID_REDIS_PASSWORD"
	EnvSlackToken    = "RAPIDAID_SLACK_TOKEN"
	EnvDiscordToken  = "RAPIDAID_DISCORD_TOKEN"
	EnvServerPort    = "RAPIDAID_PORT"
)

// Config is the top-level RapidAid configuration, loaded from rapidaid.yaml.
type Config struct {
	Database   DatabaseConfig    `yaml:"database"`
	Server     ServerConfig      `yaml:"server"`
	Cache      CacheConfig       `yaml:"cache"`
	Identity   IdentityConfig    `yaml:"identity"`
	Matcher    MatcherConfig     `yaml:"matcher"`
	Log        LogConfig         `yaml:"log"`
	Telegraph  TelegraphConfig   `yaml:"telegraph"`
	Accounts   []AccountConfig   `yaml:"accounts"`
	Responders []ResponderConfig `yaml:"responders"`
}

// DatabaseConfig holds connection settings for the request store.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // mysql, postgres, sqlite
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	Path       string `yaml:"path"` // sqlite file
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port              int    `yaml:"port"`
	SubmitRate        string `yaml:"submit_rate"` // limiter format, e.g. "10-M"
	IdempotencyTTLSec int    `yaml:"idempotency_ttl_sec"`
}

// CacheConfig selects the backing store for idempotency keys and rate limits.
type CacheConfig struct {
	Type  string      `yaml:"type"` // local, redis
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IdentityConfig tunes the bearer token cache.
type IdentityConfig struct {
	CacheSize   int `yaml:"cache_size"`
	CacheTTLSec int `yaml:"cache_ttl_sec"`
}

// MatcherConfig tunes candidate lookup.
type MatcherConfig struct {
	MaxCandidates int `yaml:"max_candidates"` // 0 = unlimited
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // optional rotating log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelegraphConfig configures the unclaimed-request digest sent to an
// operations channel.
type TelegraphConfig struct {
	Platform      string         `yaml:"platform"` // "", slack, discord
	DigestCron    string         `yaml:"digest_cron"`
	StaleAfterMin int            `yaml:"stale_after_min"`
	Slack         PlatformConfig `yaml:"slack"`
	Discord       PlatformConfig `yaml:"discord"`
}

// PlatformConfig holds chat platform credentials.
type PlatformConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// AccountConfig seeds an identity that can authenticate against the API.
type AccountConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
	Token string `yaml:"token"`
}

// ResponderConfig seeds an entry in the responder directory.
type ResponderConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Contact     string   `yaml:"contact"`
	Role        string   `yaml:"role"`
	Available   *bool    `yaml:"available"`
	Latitude    *float64 `yaml:"latitude"`
	Longitude   *float64 `yaml:"longitude"`
	Categories  []string `yaml:"categories"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, if present, is loaded into the process
// environment first; variables already set are left alone.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from RAPIDAID_* environment variables.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvDBPassword); ok {
		c.Database.Password = v
	}
	if v, ok := os.LookupEnv(EnvRedisPassword); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := os.LookupEnv(EnvSlackToken); ok {
		c.Telegraph.Slack.Token = v
	}
	if v, ok := os.LookupEnv(EnvDiscordToken); ok {
		c.Telegraph.Discord.Token = v
	}
	if v, ok := os.LookupEnv(EnvServerPort); ok && v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err != nil {
			return fmt.Errorf("config: %s=%q: not a port number", EnvServerPort, v)
		}
		c.Server.Port = port
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "rapidaid.db"
		}
	case "mysql", "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
			if c.Database.Driver == "postgres" {
				c.Database.Port = 5432
			}
		}
		if c.Database.Name == "" {
			c.Database.Name = "rapidaid"
		}
	}
	if c.Database.TimeoutSec == 0 {
		c.Database.TimeoutSec = 5
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SubmitRate == "" {
		c.Server.SubmitRate = "10-M"
	}
	if c.Server.IdempotencyTTLSec == 0 {
		c.Server.IdempotencyTTLSec = 600
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "local"
	}

	if c.Identity.CacheSize == 0 {
		c.Identity.CacheSize = 1024
	}
	if c.Identity.CacheTTLSec == 0 {
		c.Identity.CacheTTLSec = 60
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}

	if c.Telegraph.DigestCron == "" {
		c.Telegraph.DigestCron = "*/15 * * * *"
	}
	if c.Telegraph.StaleAfterMin == 0 {
		c.Telegraph.StaleAfterMin = 10
	}

	for i := range c.Responders {
		if c.Responders[i].Role == "" {
			c.Responders[i].Role = lifecycle.RoleVolunteer
		}
		if c.Responders[i].Available == nil {
			available := true
			c.Responders[i].Available = &available
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be one of mysql, postgres, sqlite", c.Database.Driver))
	}
	if c.Database.TimeoutSec < 0 {
		errs = append(errs, "database.timeout_sec must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.IdempotencyTTLSec < 0 {
		errs = append(errs, "server.idempotency_ttl_sec must not be negative")
	}

	switch c.Cache.Type {
	case "local":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, "cache.redis.addr is required when cache.type is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.type %q must be local or redis", c.Cache.Type))
	}

	if c.Identity.CacheSize < 0 {
		errs = append(errs, "identity.cache_size must not be negative")
	}
	if c.Matcher.MaxCandidates < 0 {
		errs = append(errs, "matcher.max_candidates must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}

	switch c.Telegraph.Platform {
	case "":
	case "slack":
		errs = append(errs, platformErrors("slack", c.Telegraph.Slack)...)
	case "discord":
		errs = append(errs, platformErrors("discord", c.Telegraph.Discord)...)
	default:
		errs = append(errs, fmt.Sprintf("telegraph.platform %q must be slack or discord", c.Telegraph.Platform))
	}
	if c.Telegraph.StaleAfterMin < 0 {
		errs = append(errs, "telegraph.stale_after_min must not be negative")
	}

	errs = append(errs, c.validateAccounts()...)
	errs = append(errs, c.validateResponders()...)

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func platformErrors(name string, p PlatformConfig) []string {
	var errs []string
	if p.Token == "" {
		errs = append(errs, fmt.Sprintf("telegraph.%s.token is required", name))
	}
	if p.Channel == "" {
		errs = append(errs, fmt.Sprintf("telegraph.%s.channel is required", name))
	}
	return errs
}

func (c *Config) validateAccounts() []string {
	var errs []string
	ids := make(map[string]bool)
	tokens := make(map[string]bool)
	for i, a := range c.Accounts {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].id is required", i))
		} else if ids[a.ID] {
			errs = append(errs, fmt.Sprintf("accounts[%d].id %q is duplicated", i, a.ID))
		}
		ids[a.ID] = true
		if !lifecycle.ValidRole(a.Role) {
			errs = append(errs, fmt.Sprintf("accounts[%d].role %q must be donor, volunteer or responder", i, a.Role))
		}
		if a.Token == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].token is required", i))
		} else if tokens[a.Token] {
			errs = append(errs, fmt.Sprintf("accounts[%d].token is shared with another account", i))
		}
		tokens[a.Token] = true
	}
	return errs
}

func (c *Config) validateResponders() []string {
	var errs []string
	ids := make(map[string]bool)
	for i, r := range c.Responders {
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("responders[%d].id is required", i))
		} else if ids[r.ID] {
			errs = append(errs, fmt.Sprintf("responders[%d].id %q is duplicated", i, r.ID))
		}
		ids[r.ID] = true
		if r.DisplayName == "" {
			errs = append(errs, fmt.Sprintf("responders[%d].display_name is required", i))
		}
		if r.Role != lifecycle.RoleVolunteer && r.Role != lifecycle.RoleResponder {
			errs = append(errs, fmt.Sprintf("responders[%d].role %q must be volunteer or responder", i, r.Role))
		}
		if (r.Latitude == nil) != (r.Longitude == nil) {
			errs = append(errs, fmt.Sprintf("responders[%d]: latitude and longitude must be set together", i))
		} else if r.Latitude != nil && !validCoordinate(*r.Latitude, 90) || r.Longitude != nil && !validCoordinate(*r.Longitude, 180) {
			errs = append(errs, fmt.Sprintf("responders[%d]: coordinates out of range", i))
		}
		for _, cat := range r.Categories {
			if _, err := lifecycle.ParseCategory(cat); err != nil {
				errs = append(errs, fmt.Sprintf("responders[%d]: unknown category %q", i, cat))
			}
		}
	}
	return errs
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}
