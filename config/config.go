// Package config loads questmaster settings from a YAML file, environment
// variables and built-in defaults, in that order of precedence from last to
// first.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/shell"

	"questmaster/reasoning"
	"questmaster/session"
)

const envPrefix = "QUESTMASTER"

type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Store     StoreConfig     `mapstructure:"store"`
	Session   SessionConfig   `mapstructure:"session"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type BackendConfig struct {
	// Provider is openai or anthropic.
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type ReasoningConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type StoreConfig struct {
	// Driver is sqlite or memory.
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type SessionConfig struct {
	Strict bool `mapstructure:"strict"`
}

type ServerConfig struct {
	// Transport is stdio or sse.
	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.provider", "openai")
	v.SetDefault("backend.model", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.temperature", 0.5)
	v.SetDefault("backend.max_tokens", 1024)

	def := reasoning.DefaultOptions()
	v.SetDefault("reasoning.timeout", def.Timeout.String())
	v.SetDefault("reasoning.max_retries", def.MaxRetries)
	v.SetDefault("reasoning.initial_backoff", def.InitialBackoff.String())
	v.SetDefault("reasoning.max_backoff", def.MaxBackoff.String())

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", session.DefaultDBPath())

	v.SetDefault("session.strict", false)

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "questmaster")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "questmaster")
	}
	return filepath.Join(home, ".config", "questmaster")
}

// Load reads questmaster.yaml from path, or when path is empty from the
// working directory or the XDG config directory. A missing file is not an
// error when no explicit path was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("questmaster")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(userConfigDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if cfg.Backend.APIKey == "" {
		cfg.Backend.APIKey = os.Getenv(cfg.apiKeyEnv())
	}
	return cfg, cfg.Validate()
}

// expand resolves ${VAR} references in values that usually hold secrets or
// machine specific paths.
func (c *Config) expand() error {
	for name, value := range map[string]*string{
		"backend.api_key":  &c.Backend.APIKey,
		"backend.base_url": &c.Backend.BaseURL,
		"store.path":       &c.Store.Path,
	} {
		expanded, err := shell.Expand(*value, nil)
		if err != nil {
			return fmt.Errorf("expanding %s: %w", name, err)
		}
		*value = expanded
	}
	return nil
}

func (c *Config) apiKeyEnv() string {
	if c.Backend.Provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func (c *Config) Validate() error {
	var errList []error
	switch c.Backend.Provider {
	case "openai", "anthropic":
	default:
		errList = append(errList, fmt.Errorf("backend.provider: unknown provider %q", c.Backend.Provider))
	}
	if c.Backend.MaxTokens <= 0 {
		errList = append(errList, fmt.Errorf("backend.max_tokens must be positive"))
	}
	if c.Reasoning.Timeout <= 0 {
		errList = append(errList, fmt.Errorf("reasoning.timeout must be positive"))
	}
	if c.Reasoning.MaxRetries < 0 {
		errList = append(errList, fmt.Errorf("reasoning.max_retries must not be negative"))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errList = append(errList, fmt.Errorf("store.path is required for sqlite"))
		}
	default:
		errList = append(errList, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Server.Transport {
	case "stdio", "sse":
	default:
		errList = append(errList, fmt.Errorf("server.transport: unknown transport %q", c.Server.Transport))
	}
	return errors.Join(errList...)
}

// ReasoningOptions converts the reasoning section to adapter options.
func (c *Config) ReasoningOptions() reasoning.Options {
	return reasoning.Options{
		Timeout:        c.Reasoning.Timeout,
		MaxRetries:     c.Reasoning.MaxRetries,
		InitialBackoff: c.Reasoning.InitialBackoff,
		MaxBackoff:     c.Reasoning.MaxBackoff,
	}
}

// NewBackend builds the configured reasoning backend.
func (c *Config) NewBackend() (reasoning.Backend, error) {
	switch c.Backend.Provider {
	case "anthropic":
		backend, err := reasoning.NewAnthropicBackend(reasoning.AnthropicConfig{
			APIKey:      c.Backend.APIKey,
			BaseURL:     c.Backend.BaseURL,
			Model:       c.Backend.Model,
			Temperature: c.Backend.Temperature,
			MaxTokens:   int64(c.Backend.MaxTokens),
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "openai":
		backend, err := reasoning.NewOpenAIBackend(reasoning.OpenAIConfig{
			APIKey:      c.Backend.APIKey,
			BaseURL:     c.Backend.BaseURL,
			Model:       c.Backend.Model,
			Temperature: float32(c.Backend.Temperature),
			MaxTokens:   c.Backend.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Backend.Provider)
	}
}

// OpenStore opens the configured session store.
func (c *Config) OpenStore() (session.Store, error) {
	if c.Store.Driver == "memory" {
		return session.NewMemoryStore(), nil
	}
	return session.OpenSQLite(c.Store.Path)
}
