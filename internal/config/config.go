// Package config handles configuration for webterm: a YAML file, environment
// overrides and hot reload.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. WEBTERM_SERVER_URL.
const EnvPrefix = "WEBTERM"

// Overlap policies for a submission made while a command is in flight.
const (
	OverlapAllow  = "allow"
	OverlapReject = "reject"
)

// DefaultConfigPath returns $XDG_CONFIG_HOME/webterm/config.yaml or
// ~/.config/webterm/config.yaml.
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "webterm", "config.yaml")
}

// DefaultLogPath returns the log file location under the user cache dir.
func DefaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "webterm", "webterm.log")
}

// Config represents the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	URL       string `yaml:"url"`                                     // base URL, e.g. https://host:5000
	LoginPath string `yaml:"login_path" split_words:"true"`           // authentication endpoint path
	Insecure  bool   `yaml:"insecure_skip_verify" split_words:"true"` // skip TLS verification
}

// TransportConfig controls the real-time connection.
type TransportConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Path              string        `yaml:"path"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" split_words:"true"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" split_words:"true"` // 0 disables reconnects
	PingInterval      time.Duration `yaml:"ping_interval" split_words:"true"`
	ReadTimeout       time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout      time.Duration `yaml:"write_timeout" split_words:"true"`
}

// AuthConfig defines how the credential is obtained.
type AuthConfig struct {
	CredentialEnv  string        `yaml:"credential_env" split_words:"true"` // env var holding the password
	Remember       bool          `yaml:"remember"`                          // store accepted credential in OS keyring
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
}

// SessionConfig defines command session behaviour.
type SessionConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout" split_words:"true"` // 0 waits forever
	Overlap        string        `yaml:"overlap"`                            // "allow" or "reject"
	PromptUser     string        `yaml:"prompt_user" split_words:"true"`
	PromptHost     string        `yaml:"prompt_host" split_words:"true"`
}

// TerminalConfig configures the local terminal widget.
type TerminalConfig struct {
	Scrollback int  `yaml:"scrollback"`
	ConvertEOL bool `yaml:"convert_eol" split_words:"true"`
	SetTitle   bool `yaml:"set_title" split_words:"true"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // redact credentials in logs
	File     string `yaml:"file"`     // log destination, "-" for stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			LoginPath: "/api/login",
		},
		Transport: TransportConfig{
			Enabled:           true,
			Path:              "/ws",
			HandshakeTimeout:  20 * time.Second,
			ReconnectInterval: 2 * time.Second,
			PingInterval:      30 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Auth: AuthConfig{
			CredentialEnv:  "WEBTERM_PASSWORD",
			RequestTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CommandTimeout: 5 * time.Minute,
			Overlap:        OverlapAllow,
			PromptUser:     "ubuntu",
			PromptHost:     "webterminal",
		},
		Terminal: TerminalConfig{
			Scrollback: 1000,
			ConvertEOL: true,
			SetTitle:   true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
			File:     DefaultLogPath(),
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from WEBTERM_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}
	return nil
}

// Validate validates the configuration and fills in defaults for zero values.
func (c *Config) Validate() error {
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil {
			return fmt.Errorf("invalid server url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server url must use http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("server url has no host: %s", c.Server.URL)
		}
	}

	if c.Server.LoginPath == "" {
		c.Server.LoginPath = "/api/login"
	}
	if c.Transport.Path == "" {
		c.Transport.Path = "/ws"
	}
	if c.Transport.HandshakeTimeout <= 0 {
		c.Transport.HandshakeTimeout = 20 * time.Second
	}
	if c.Transport.ReconnectInterval < 0 {
		return fmt.Errorf("transport.reconnect_interval must not be negative")
	}
	if c.Transport.PingInterval <= 0 {
		c.Transport.PingInterval = 30 * time.Second
	}
	if c.Transport.ReadTimeout <= c.Transport.PingInterval {
		c.Transport.ReadTimeout = 2 * c.Transport.PingInterval
	}
	if c.Transport.WriteTimeout <= 0 {
		c.Transport.WriteTimeout = 10 * time.Second
	}
	if c.Auth.RequestTimeout <= 0 {
		c.Auth.RequestTimeout = 10 * time.Second
	}

	if c.Session.CommandTimeout < 0 {
		return fmt.Errorf("session.command_timeout must not be negative")
	}
	switch c.Session.Overlap {
	case "":
		c.Session.Overlap = OverlapAllow
	case OverlapAllow, OverlapReject:
	default:
		return fmt.Errorf("session.overlap must be %q or %q, got %q", OverlapAllow, OverlapReject, c.Session.Overlap)
	}
	if c.Session.PromptUser == "" {
		c.Session.PromptUser = "ubuntu"
	}
	if c.Session.PromptHost == "" {
		c.Session.PromptHost = "webterminal"
	}

	if c.Terminal.Scrollback <= 0 {
		c.Terminal.Scrollback = 1000
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}

	return nil
}

// TransportAvailable reports whether a real-time transport can be built.
// Without it the client starts straight in degraded mode.
func (c *Config) TransportAvailable() bool {
	return c.Server.URL != "" && c.Transport.Enabled
}

// LoginURL returns the absolute authentication endpoint URL.
func (c *Config) LoginURL() string {
	return strings.TrimRight(c.Server.URL, "/") + c.Server.LoginPath
}

// WebSocketURL returns the ws:// or wss:// URL of the transport endpoint.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.Transport.Path
	return u.String(), nil
}
