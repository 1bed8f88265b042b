// Package config loads the assistant's settings from an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultOpenAIURL       = "https://api.openai.com/v1"
	defaultModel           = "gpt-4o"
	defaultServerURL       = "http://localhost:8182"
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultShutdownTimeout = 5 * time.Second
	defaultMaxToolRounds   = 10
	defaultUCPRetries      = 2
	defaultLogLevel        = "info"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	OpenAIURL     string `yaml:"openai_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	Model         string `yaml:"model"`
	SystemPrompt  string `yaml:"system_prompt"`
	MaxToolRounds int    `yaml:"max_tool_rounds"`
	Streaming     bool   `yaml:"streaming"`

	ServerURL    string `yaml:"ucp_server_url"`
	AgentProfile string `yaml:"ucp_agent_profile"`
	UCPRetries   int    `yaml:"ucp_retries"`
	LogHTTP      bool   `yaml:"log_http"`

	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	LogLevel  string    `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
	NoColor   bool      `yaml:"no_color"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the database for web sessions. An empty driver keeps
// sessions in memory only.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

func Default() Config {
	return Config{
		OpenAIURL:       defaultOpenAIURL,
		Model:           defaultModel,
		MaxToolRounds:   defaultMaxToolRounds,
		Streaming:       true,
		ServerURL:       defaultServerURL,
		UCPRetries:      defaultUCPRetries,
		HTTPAddr:        defaultHTTPAddr,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        defaultLogLevel,
		LogFormat:       LogFormatText,
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (when given) and the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = parsed
		return nil
	}

	str("OPENAI_URL", &c.OpenAIURL)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("SHOP_MODEL", &c.Model)
	str("UCP_SERVER_URL", &c.ServerURL)
	str("SHOP_HTTP_ADDR", &c.HTTPAddr)
	str("SHOP_LOG_LEVEL", &c.LogLevel)
	str("SHOP_STORE_DRIVER", &c.Store.Driver)
	str("SHOP_STORE_DSN", &c.Store.DSN)

	if err := boolean("SHOP_LOG_HTTP", &c.LogHTTP); err != nil {
		return err
	}
	if err := boolean("SHOP_STREAMING", &c.Streaming); err != nil {
		return err
	}
	if v, ok := lookup("SHOP_LOG_FORMAT"); ok && strings.TrimSpace(v) != "" {
		c.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup("SHOP_SHUTDOWN_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse SHOP_SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = parsed
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c Config) Validate() error {
	if err := validateURL("openai_url", c.OpenAIURL); err != nil {
		return err
	}
	if c.ServerURL != "" {
		if err := validateURL("ucp_server_url", c.ServerURL); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("validate config: model is required")
	}
	if c.MaxToolRounds <= 0 {
		return errors.New("validate config: max_tool_rounds must be > 0")
	}
	if c.UCPRetries < 0 {
		return errors.New("validate config: ucp_retries must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("validate config: shutdown_timeout must be > 0")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("validate config: unsupported log_format %q (allowed: %q, %q)", c.LogFormat, LogFormatText, LogFormatJSON)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("validate config: postgres store requires a dsn")
		}
	default:
		return fmt.Errorf("validate config: unsupported store driver %q (allowed: %q, %q)", c.Store.Driver, "sqlite", "postgres")
	}
	return nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("validate config: %s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("validate config: unsupported log_level %q (allowed: debug, info, warn, error)", input)
	}
}
