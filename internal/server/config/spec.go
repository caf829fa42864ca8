package config

import "time"

// ServerConfig is the root configuration for devserve-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	TLS     TLSSection     `koanf:"tls"`
	Files   FilesSection   `koanf:"files"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the listening socket and request handling.
type ServerSection struct {
	// Hostname is resolved before binding. Empty listens on all
	// interfaces.
	Hostname string `koanf:"hostname"`

	// Port is bound exactly. Ignored when PortHint is set.
	Port int `koanf:"port"`

	// PortHint starts a probe for the first free port up to PortMax.
	PortHint int `koanf:"port_hint"`
	PortMax  int `koanf:"port_max"`

	HTTP2 bool `koanf:"http2"`

	// RedirectHTTP answers plain requests on the https port with a
	// redirection. AllowHTTP serves them instead.
	RedirectHTTP bool `koanf:"redirect_http"`
	AllowHTTP    bool `koanf:"allow_http"`

	ServerTiming        bool `koanf:"server_timing"`
	StopOnSignals       bool `koanf:"stop_on_signals"`
	StopOnInternalError bool `koanf:"stop_on_internal_error"`

	StopGracePeriod       time.Duration `koanf:"stop_grace_period"`
	RequestWaitingTimeout time.Duration `koanf:"request_waiting_timeout"`
	ReadHeaderTimeout     time.Duration `koanf:"read_header_timeout"`
	IdleTimeout           time.Duration `koanf:"idle_timeout"`

	// PushWindow caps the bytes pushed per HTTP/2 connection.
	PushWindow int64 `koanf:"push_window"`
}

// TLSSection configures HTTPS.
type TLSSection struct {
	Enabled bool `koanf:"enabled"`

	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// CertPEM and KeyPEM hold inline material. They take precedence over
	// the files.
	CertPEM string `koanf:"cert_pem"`
	KeyPEM  string `koanf:"key_pem"`

	// SelfSigned generates a certificate for Hostname and localhost when
	// no material is configured.
	SelfSigned bool `koanf:"self_signed"`

	// Watch reloads CertFile and KeyFile when they change.
	Watch bool `koanf:"watch"`

	// ClientCAFile lists the CAs that client certificates are verified
	// against. Clients without a certificate are still served.
	ClientCAFile string `koanf:"client_ca_file"`
}

// FilesSection configures the file service.
type FilesSection struct {
	Root         string              `koanf:"root"`
	Index        string              `koanf:"index"`
	CacheControl string              `koanf:"cache_control"`
	Push         map[string][]string `koanf:"push"`
}

// MetricsSection configures the metrics service.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
