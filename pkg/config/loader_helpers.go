package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Booleans only override when the key is present.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.WebDriver.Host != "" {
		base.WebDriver.Host = override.WebDriver.Host
	}
	if override.WebDriver.Port != 0 {
		base.WebDriver.Port = override.WebDriver.Port
	}
	if override.WebDriver.ConnectTimeout != 0 {
		base.WebDriver.ConnectTimeout = override.WebDriver.ConnectTimeout
	}
	if override.WebDriver.CommandTimeout != 0 {
		base.WebDriver.CommandTimeout = override.WebDriver.CommandTimeout
	}

	if override.Browser.Name != "" {
		base.Browser.Name = override.Browser.Name
	}
	if boolFieldSet(raw, "browser", "headless") {
		base.Browser.Headless = override.Browser.Headless
	}
	if boolFieldSet(raw, "browser", "accept_insecure_certs") {
		base.Browser.AcceptInsecureCerts = override.Browser.AcceptInsecureCerts
	}
	if override.Browser.UnhandledPromptBehavior != "" {
		base.Browser.UnhandledPromptBehavior = override.Browser.UnhandledPromptBehavior
	}
	if len(override.Browser.Args) > 0 {
		base.Browser.Args = append([]string(nil), override.Browser.Args...)
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if boolFieldSet(raw, "metrics", "enabled") {
		base.Metrics.Enabled = override.Metrics.Enabled
	}
	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}

	if boolFieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
