package bot

import (
	"github.com/odvcencio/bidibot/pkg/bidi"
	"github.com/odvcencio/bidibot/pkg/observability"
	"github.com/odvcencio/bidibot/pkg/telemetry"
)

// Option configures a Bot.
type Option func(*options)

type options struct {
	logger       *observability.Logger
	hub          *telemetry.Hub
	clientConfig bidi.Config
}

// WithLogger sets the logger used by the bot and, unless WithClientConfig says otherwise,
// by its protocol client.
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHub publishes lifecycle events to hub.
func WithHub(hub *telemetry.Hub) Option {
	return func(o *options) {
		o.hub = hub
	}
}

// WithClientConfig sets timeouts and transports for the protocol client New builds.
// It has no effect on NewWithClient.
func WithClientConfig(cfg bidi.Config) Option {
	return func(o *options) {
		o.clientConfig = cfg
	}
}

func buildOptions(opts []Option) options {
	o := options{clientConfig: bidi.DefaultConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = observability.NopLogger()
	}
	if o.clientConfig.Logger == nil {
		o.clientConfig.Logger = o.logger
	}
	return o
}
