package config

import "time"

// Default configuration values.
const (
	DefaultPort         = 8080
	DefaultPortMax      = 65535
	DefaultIndex        = "index.html"
	DefaultRoot         = "."
	DefaultCacheControl = "no-cache"

	DefaultStopGracePeriod       = 5 * time.Second
	DefaultRequestWaitingTimeout = 30 * time.Second
	DefaultReadHeaderTimeout     = 10 * time.Second
	DefaultIdleTimeout           = 2 * time.Minute
	DefaultPushWindow            = 65535

	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			PortHint:              DefaultPort,
			PortMax:               DefaultPortMax,
			HTTP2:                 true,
			ServerTiming:          true,
			StopOnSignals:         true,
			StopGracePeriod:       DefaultStopGracePeriod,
			RequestWaitingTimeout: DefaultRequestWaitingTimeout,
			ReadHeaderTimeout:     DefaultReadHeaderTimeout,
			IdleTimeout:           DefaultIdleTimeout,
			PushWindow:            DefaultPushWindow,
		},
		Files: FilesSection{
			Root:         DefaultRoot,
			Index:        DefaultIndex,
			CacheControl: DefaultCacheControl,
		},
		Metrics: MetricsSection{
			Path: DefaultMetricsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
