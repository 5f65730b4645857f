package bidi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/bidibot/pkg/observability"
)

// Config controls how a Session reaches the remote end.
type Config struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	HTTPClient     *http.Client
	Dialer         *websocket.Dialer
	Logger         *observability.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ConnectTimeout > 0 {
		defaults.ConnectTimeout = c.ConnectTimeout
	}
	if c.CommandTimeout > 0 {
		defaults.CommandTimeout = c.CommandTimeout
	}
	defaults.HTTPClient = c.HTTPClient
	if defaults.HTTPClient == nil {
		defaults.HTTPClient = &http.Client{}
	}
	defaults.Dialer = c.Dialer
	if defaults.Dialer == nil {
		defaults.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaults.ConnectTimeout,
		}
	}
	defaults.Logger = c.Logger
	if defaults.Logger == nil {
		defaults.Logger = observability.NopLogger()
	}
	return defaults
}

// Validate checks whether the config is usable.
func (c Config) Validate() error {
	if c.ConnectTimeout < 0 {
		return errors.New("connect_timeout must be zero or positive")
	}
	if c.CommandTimeout < 0 {
		return errors.New("command_timeout must be zero or positive")
	}
	return nil
}
