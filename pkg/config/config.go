// Package config loads the settings of the apipager CLI from a YAML file and
// environment overrides, and turns them into the component configurations.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/apipager/pkg/auth"
	"github.com/Sternrassler/apipager/pkg/client"
	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/Sternrassler/apipager/pkg/pagination"
	"github.com/Sternrassler/apipager/pkg/recordlog"
	"github.com/Sternrassler/apipager/pkg/usersync"
)

// Environment variables overriding file settings.
const (
	EnvBaseURI   = "APIPAGER_BASE_URI"
	EnvUsername  = "APIPAGER_USERNAME"
	EnvPassword  = "APIPAGER_PASSWORD"
	EnvToken     = "APIPAGER_TOKEN"
	EnvRedisAddr = "APIPAGER_REDIS_ADDR"
	EnvLogLevel  = "APIPAGER_LOG_LEVEL"
)

// Config is the complete CLI configuration.
type Config struct {
	BaseURI       string        `yaml:"base_uri" validate:"required,url"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	RetryAttempts int           `yaml:"retry_attempts" validate:"min=1"`

	Auth       AuthConfig       `yaml:"auth"`
	Pagination PaginationConfig `yaml:"pagination"`
	Redis      RedisConfig      `yaml:"redis"`
	Sync       usersync.Config  `yaml:"sync"`
	Logging    logging.Config   `yaml:"logging"`
}

// AuthConfig holds login settings.
type AuthConfig struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Endpoint   string `yaml:"endpoint"`
	TokenField string `yaml:"token_field" validate:"required"`
	LoginType  string `yaml:"login_type"`

	// Token is a fixed token used instead of the login exchange.
	Token string `yaml:"token"`
}

// PaginationConfig holds fetcher settings.
type PaginationConfig struct {
	Schema        pagination.Schema `yaml:"schema"`
	Limit         int               `yaml:"limit" validate:"min=1"`
	StartPage     int               `yaml:"start_page" validate:"min=1"`
	MaxPages      int               `yaml:"max_pages" validate:"min=1"`
	FailurePolicy string            `yaml:"failure_policy" validate:"oneof=abort partial"`
}

// RedisConfig holds the connection of the profile store and record log.
type RedisConfig struct {
	Addr   string `yaml:"addr" validate:"required,hostname_port"`
	DB     int    `yaml:"db" validate:"min=0"`
	Stream string `yaml:"stream"`
}

// Default returns the default configuration. BaseURI has no default.
func Default() Config {
	authCfg := auth.DefaultConfig()
	fetchCfg := pagination.DefaultConfig()

	return Config{
		UserAgent:     "apipager/0.1.0",
		Timeout:       20 * time.Second,
		RetryAttempts: client.DefaultRetryConfig().MaxAttempts,
		Auth: AuthConfig{
			Endpoint:   authCfg.Endpoint,
			TokenField: authCfg.TokenField,
			LoginType:  authCfg.LoginType,
		},
		Pagination: PaginationConfig{
			Schema:        fetchCfg.Schema,
			Limit:         fetchCfg.Limit,
			StartPage:     fetchCfg.StartPage,
			MaxPages:      fetchCfg.MaxPages,
			FailurePolicy: string(fetchCfg.FailurePolicy),
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: recordlog.DefaultStream,
		},
		Sync: usersync.DefaultConfig(),
		Logging: logging.Config{
			Level: logging.LevelInfo,
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML from %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides settings from set environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	overrides := map[string]*string{
		EnvBaseURI:   &c.BaseURI,
		EnvUsername:  &c.Auth.Username,
		EnvPassword:  &c.Auth.Password,
		EnvToken:     &c.Auth.Token,
		EnvRedisAddr: &c.Redis.Addr,
	}
	for key, field := range overrides {
		if v, ok := lookup(key); ok {
			*field = v
		}
	}

	if v, ok := lookup(EnvLogLevel); ok {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		c.Logging.Level = level
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %q)",
				client.ErrInvalidArgument, fe.Namespace(), fe.Tag(), fmt.Sprint(fe.Value()))
		}
		return fmt.Errorf("%w: %v", client.ErrInvalidArgument, err)
	}
	return c.Pagination.Schema.Validate()
}

// ClientConfig returns the HTTP client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.BaseURI)
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	cfg.Timeout = c.Timeout
	cfg.Retry.MaxAttempts = c.RetryAttempts
	return cfg
}

// TokenProviderConfig returns the token provider configuration.
func (c *Config) TokenProviderConfig() auth.Config {
	return auth.Config{
		Endpoint:   c.Auth.Endpoint,
		TokenField: c.Auth.TokenField,
		LoginType:  c.Auth.LoginType,
		DummyToken: c.Auth.Token,
	}
}

// Credentials returns the login credentials.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		Username: c.Auth.Username,
		Password: c.Auth.Password,
	}
}

// FetcherConfig returns the paginated fetcher configuration.
func (c *Config) FetcherConfig() pagination.Config {
	return pagination.Config{
		Schema:        c.Pagination.Schema,
		Limit:         c.Pagination.Limit,
		StartPage:     c.Pagination.StartPage,
		MaxPages:      c.Pagination.MaxPages,
		FailurePolicy: pagination.FailurePolicy(c.Pagination.FailurePolicy),
	}
}

// RedisOptions returns the Redis connection options.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr: c.Redis.Addr,
		DB:   c.Redis.DB,
	}
}

// String renders the configuration as YAML with secrets masked.
func (c Config) String() string {
	masked := c
	if masked.Auth.Password != "" {
		masked.Auth.Password = "***"
	}
	if masked.Auth.Token != "" {
		masked.Auth.Token = "***"
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return "config: " + strconv.Quote(err.Error())
	}
	return string(out)
}
