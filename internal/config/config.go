// Package config resolves cache settings from an option map, CACHE_*
// environment variables and a per-environment deployment file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid value")

const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"

	DefaultCollection = "rails_cache_store"
	DefaultExpiresIn  = 24 * time.Hour
	DefaultConfigFile = "config/cache.yml"
	DefaultEnv        = "development"

	envPrefix = "CACHE_"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds every setting the server and the cache engine read.
type Config struct {
	Env             string        `mapstructure:"env"`
	ConfigFile      string        `mapstructure:"config_file"`
	CollectionName  string        `mapstructure:"collection_name"`
	DatabaseName    string        `mapstructure:"database_name"`
	ExpiresIn       time.Duration `mapstructure:"expires_in"`
	Backend         string        `mapstructure:"backend"`
	DataDir         string        `mapstructure:"data_dir"`
	Namespace       string        `mapstructure:"namespace"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	LogLevel        string        `mapstructure:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`

	AdminUsername     string `mapstructure:"admin_username"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// Keys lists every recognized option name.
var Keys = []string{
	"env", "config_file", "collection_name", "database_name", "expires_in",
	"backend", "data_dir", "namespace", "cleanup_schedule", "listen_addr", "log_level",
	"jwt_secret", "jwt_issuer", "jwt_audience", "token_ttl",
	"admin_username", "admin_password_hash",
}

// Defaults returns the configuration used when no option is given.
// DatabaseName is left empty; it is resolved from the deployment file.
func Defaults() Config {
	return Config{
		Env:             DefaultEnv,
		ConfigFile:      DefaultConfigFile,
		CollectionName:  DefaultCollection,
		ExpiresIn:       DefaultExpiresIn,
		Backend:         BackendSQLite,
		DataDir:         ".",
		CleanupSchedule: "@every 10m",
		ListenAddr:      ":8008",
		LogLevel:        "info",
		JWTSecret:       "development-insecure-secret-change-me",
		JWTIssuer:       "ttl-cache-store",
		JWTAudience:     "ttl-cache-admins",
		TokenTTL:        24 * time.Hour,
		AdminUsername:   "admin",
	}
}

// FromMap applies options on top of Defaults, resolves the database name and
// validates the result. Durations accept strings such as "1h" or time.Duration values.
func FromMap(options map[string]any) (*Config, error) {
	cfg := Defaults()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.DatabaseName == "" {
		name, err := DatabaseFromFile(cfg.ConfigFile, cfg.Env)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseName = name
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads CACHE_<KEY> environment variables for every key in Keys and
// passes them to FromMap.
func Load() (*Config, error) {
	return FromMap(FromEnv(os.LookupEnv))
}

// FromEnv collects the options present in the environment.
func FromEnv(lookup func(string) (string, bool)) map[string]any {
	options := make(map[string]any)
	for _, key := range Keys {
		if v, ok := lookup(envPrefix + strings.ToUpper(key)); ok && v != "" {
			options[key] = v
		}
	}
	return options
}

type deploymentSection struct {
	Database string `yaml:"database"`
}

// DatabaseFromFile returns the database name configured for env in the
// deployment file at path. A missing file or section falls back to
// "ttl_cache_store_<env>".
func DatabaseFromFile(path, env string) (string, error) {
	fallback := "ttl_cache_store_" + env

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, nil
		}
		return "", fmt.Errorf("%w: config_file: %w", ErrInvalidConfig, err)
	}

	var sections map[string]deploymentSection
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return "", fmt.Errorf("%w: config_file %s: %w", ErrInvalidConfig, path, err)
	}
	if section, ok := sections[env]; ok && section.Database != "" {
		return section.Database, nil
	}
	return fallback, nil
}

// Validate checks every field and names the first invalid one.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
	}

	if !identifier.MatchString(c.CollectionName) {
		return invalid("collection_name", "%q is not an identifier", c.CollectionName)
	}
	if c.DatabaseName == "" || strings.ContainsAny(c.DatabaseName, `/\`) {
		return invalid("database_name", "%q is not a plain name", c.DatabaseName)
	}
	if c.ExpiresIn <= 0 {
		return invalid("expires_in", "must be positive, got %s", c.ExpiresIn)
	}
	switch c.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		return invalid("backend", "unknown backend %q", c.Backend)
	}
	if c.Namespace != "" && strings.Contains(c.Namespace, ":") {
		return invalid("namespace", "%q must not contain ':'", c.Namespace)
	}
	if c.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return invalid("cleanup_schedule", "%v", err)
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "%v", err)
	}
	if c.TokenTTL <= 0 {
		return invalid("token_ttl", "must be positive, got %s", c.TokenTTL)
	}
	if c.JWTSecret == "" {
		return invalid("jwt_secret", "must not be empty")
	}
	return nil
}

// DatabasePath returns the file backing the configured backend.
func (c *Config) DatabasePath() string {
	switch c.Backend {
	case BackendBolt:
		return filepath.Join(c.DataDir, c.DatabaseName+".bolt")
	case BackendSQLite:
		return filepath.Join(c.DataDir, c.DatabaseName+".db")
	}
	return ""
}
