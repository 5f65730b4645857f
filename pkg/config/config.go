package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/bidibot/pkg/bidi"
	"github.com/odvcencio/bidibot/pkg/observability"
)

// Config is the bidibot configuration.
type Config struct {
	WebDriver WebDriverConfig `yaml:"webdriver"`
	Browser   BrowserConfig   `yaml:"browser"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// WebDriverConfig locates the WebDriver endpoint (geckodriver, chromedriver, ...).
type WebDriverConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// BrowserConfig is turned into the session capability request.
type BrowserConfig struct {
	Name                    string   `yaml:"name"`
	Headless                bool     `yaml:"headless"`
	AcceptInsecureCerts     bool     `yaml:"accept_insecure_certs"`
	UnhandledPromptBehavior string   `yaml:"unhandled_prompt_behavior"`
	Args                    []string `yaml:"args"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		WebDriver: WebDriverConfig{
			Host:           "localhost",
			Port:           4444,
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 60 * time.Second,
		},
		Browser: BrowserConfig{
			Name: "firefox",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, ~/.bidibot/config.yaml, ./.bidibot/config.yaml, then environment.
func Load() (*Config, error) {
	return validated(Resolve(""))
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	return validated(Resolve(path))
}

// Resolve merges defaults, config files and environment overrides without validating, so
// callers can layer their own overrides first. An empty path reads the default locations.
func Resolve(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	} else if err := mergeDefaultFiles(cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeDefaultFiles(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".bidibot", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading user config: %w", err)
		}
	}

	projectConfigPath := filepath.Join(".", ".bidibot", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading project config: %w", err)
	}
	return nil
}

func validated(cfg *Config, err error) (*Config, error) {
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BIDIBOT_HOST"); v != "" {
		cfg.WebDriver.Host = v
	}
	if v := os.Getenv("BIDIBOT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BIDIBOT_PORT: %w", err)
		}
		cfg.WebDriver.Port = port
	}
	if v := os.Getenv("BIDIBOT_BROWSER"); v != "" {
		cfg.Browser.Name = v
	}
	if val, ok := envBool("BIDIBOT_HEADLESS"); ok {
		cfg.Browser.Headless = val
	}
	if v := os.Getenv("BIDIBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BIDIBOT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("BIDIBOT_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BIDIBOT_CONNECT_TIMEOUT: %w", err)
		}
		cfg.WebDriver.ConnectTimeout = d
	}
	if v := os.Getenv("BIDIBOT_COMMAND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BIDIBOT_COMMAND_TIMEOUT: %w", err)
		}
		cfg.WebDriver.CommandTimeout = d
	}
	if val, ok := envBool("BIDIBOT_TRACING"); ok {
		cfg.Tracing.Enabled = val
	}
	return nil
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

var promptBehaviors = map[string]bool{
	"":                   true,
	"dismiss":            true,
	"accept":             true,
	"dismiss and notify": true,
	"accept and notify":  true,
	"ignore":             true,
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WebDriver.Host) == "" {
		return errors.New("webdriver.host is required")
	}
	if c.WebDriver.Port <= 0 || c.WebDriver.Port > 65535 {
		return fmt.Errorf("webdriver.port must be between 1 and 65535, got %d", c.WebDriver.Port)
	}
	if err := c.ClientConfig().Validate(); err != nil {
		return fmt.Errorf("webdriver.%w", err)
	}
	if !promptBehaviors[c.Browser.UnhandledPromptBehavior] {
		return fmt.Errorf("browser.unhandled_prompt_behavior %q is not a valid prompt behavior", c.Browser.UnhandledPromptBehavior)
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// Capabilities builds the session capability request for the configured browser.
func (c *Config) Capabilities() bidi.Capabilities {
	always := &bidi.CapabilityRequest{
		BrowserName:             c.Browser.Name,
		UnhandledPromptBehavior: c.Browser.UnhandledPromptBehavior,
	}
	if c.Browser.AcceptInsecureCerts {
		accept := true
		always.AcceptInsecureCerts = &accept
	}

	args := append([]string(nil), c.Browser.Args...)
	key, headlessArg := vendorOptions(c.Browser.Name)
	if c.Browser.Headless && headlessArg != "" {
		args = append(args, headlessArg)
	}
	if key != "" && len(args) > 0 {
		always.Extensions = map[string]any{
			key: map[string]any{"args": args},
		}
	}
	return bidi.Capabilities{AlwaysMatch: always}
}

// ClientConfig returns the protocol client timeouts.
func (c *Config) ClientConfig() bidi.Config {
	return bidi.Config{
		ConnectTimeout: c.WebDriver.ConnectTimeout,
		CommandTimeout: c.WebDriver.CommandTimeout,
	}
}

// Port returns the WebDriver port as the bot expects it. Validate guarantees the range.
func (c *Config) Port() uint16 {
	return uint16(c.WebDriver.Port)
}

func vendorOptions(browser string) (key, headlessArg string) {
	switch strings.ToLower(strings.TrimSpace(browser)) {
	case "firefox":
		return "moz:firefoxOptions", "-headless"
	case "chrome", "chromium":
		return "goog:chromeOptions", "--headless=new"
	case "microsoftedge", "msedge", "edge":
		return "ms:edgeOptions", "--headless=new"
	default:
		return "", ""
	}
}
