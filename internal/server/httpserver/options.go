package httpserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/infra/tlsroots"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// DefaultPushWindow is the initial HTTP/2 flow-control window.
const DefaultPushWindow = 65535

// Options configures a Server.
type Options struct {
	// Hostname to listen on. Empty or unspecified addresses listen on all
	// interfaces and use "localhost" in the origin.
	Hostname string
	// Port to listen on. 0 picks an ephemeral port. Ignored when PortHint
	// is set.
	Port int
	// PortHint starts sequential probing for a free port.
	PortHint int
	// PortRange bounds probing (default: PortHint..65535, step +1).
	PortRange PortRange

	// HTTPS serves TLS using the TLS material.
	HTTPS bool
	TLS   tlsroots.Material
	// WatchCertificates reloads certificate files when they change.
	WatchCertificates bool
	// ClientCAs verifies client certificates when clients present one.
	ClientCAs *tlsroots.ClientCAs
	// HTTP2 enables HTTP/2: negotiated through ALPN over TLS, h2c otherwise.
	HTTP2 bool
	// RedirectHTTPToHTTPS answers plain requests on the https socket with
	// a redirection to the https origin.
	RedirectHTTPToHTTPS bool
	// AllowHTTPRequestOnHTTPS serves plain requests on the https socket.
	AllowHTTPRequestOnHTTPS bool

	// ServerTiming emits the server-timing response header.
	ServerTiming bool
	// StopOnSignals stops the server on SIGINT, SIGTERM and SIGHUP.
	StopOnSignals bool
	// StopOnInternalError stops the server when a request fails and no
	// handleError hook recovers it.
	StopOnInternalError bool
	// StopGracePeriod lets pending requests finish before they are
	// terminated (default: 0).
	StopGracePeriod time.Duration
	// RequestWaitingTimeout triggers requestWaiting hooks for requests
	// still without a response (default: 0, disabled).
	RequestWaitingTimeout time.Duration
	// PushWindow caps the bytes pushed per connection (default: 65535).
	PushWindow int64
	// SniffTimeout bounds protocol detection on the https socket
	// (default: 10s).
	SniffTimeout time.Duration
	// ReadHeaderTimeout bounds reading request headers (default: 10s).
	ReadHeaderTimeout time.Duration
	// IdleTimeout closes idle keep-alive connections (default: 2m).
	IdleTimeout time.Duration

	// Services contribute hooks. See service.Flatten for accepted values.
	Services []any

	Logger  *slog.Logger
	Metrics *metric.Registry
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PushWindow == 0 {
		o.PushWindow = DefaultPushWindow
	}
	if o.SniffTimeout <= 0 {
		o.SniffTimeout = 10 * time.Second
	}
	if o.ReadHeaderTimeout <= 0 {
		o.ReadHeaderTimeout = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	return o
}

// Validate checks option consistency. It never touches the network.
func (o Options) Validate() error {
	if o.Port < 0 || o.Port > maxPort {
		return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("port %d out of range", o.Port))
	}
	if o.PortHint < 0 || o.PortHint > maxPort {
		return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("port hint %d out of range", o.PortHint))
	}
	if o.PortHint > 0 {
		if err := o.PortRange.validate(); err != nil {
			return err
		}
	}
	if o.PushWindow < 0 {
		return domain.ErrInvalidOption.WithDetails("push window must not be negative")
	}
	if !o.HTTPS {
		if o.RedirectHTTPToHTTPS || o.AllowHTTPRequestOnHTTPS {
			return domain.ErrInvalidProtocol.WithDetails("redirecting or allowing plain requests requires https")
		}
		return nil
	}
	if o.TLS.Empty() {
		return domain.ErrMissingCertificate
	}
	if o.WatchCertificates && !o.TLS.FromFiles() {
		return domain.ErrInvalidOption.WithDetails("watching certificates requires certificate and key files")
	}
	return nil
}

// polyglot reports whether the https socket also accepts plain requests.
func (o Options) polyglot() bool {
	return o.HTTPS && (o.RedirectHTTPToHTTPS || o.AllowHTTPRequestOnHTTPS)
}
