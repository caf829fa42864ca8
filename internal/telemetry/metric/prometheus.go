package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/infra/buildinfo"
)

const namespace = "devserve"

// Push outcomes recorded by ObservePush.
const (
	PushSent      = "sent"
	PushSkipped   = "skipped"
	PushPrevented = "prevented"
	PushReset     = "reset"
)

// Registry holds all server metrics.
//
// Recording methods are safe on a nil *Registry, so components can take an
// optional registry without guarding every call.
type Registry struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsTotal prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Push metrics
	PushesTotal *prometheus.CounterVec

	// Hook metrics
	HookDuration *prometheus.HistogramVec
	HookErrors   *prometheus.CounterVec

	// Protocol detection metrics
	ClientErrors *prometheus.CounterVec

	// BuildInfo is constant 1, labelled with the build.
	BuildInfo *prometheus.GaugeVec
}

// NewRegistry creates a registry with the server metrics and the Go and
// process collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of handled requests",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time from request arrival to the end of the response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http2",
			Name:      "pushes_total",
			Help:      "HTTP/2 push attempts by outcome",
		}, []string{"outcome"}),
		HookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "hook_duration_seconds",
			Help:      "Duration of service hook calls",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"hook", "service"}),
		HookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "hook_errors_total",
			Help:      "Service hook calls that failed or panicked",
		}, []string{"hook", "service"}),
		ClientErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "client_errors_total",
			Help:      "Connections rejected before reaching HTTP",
		}, []string{"code"}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the running binary",
		}, []string{"version", "commit", "go_version"}),
	}
	info := buildinfo.Get()
	r.BuildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionsTotal,
		r.RequestsTotal,
		r.RequestDuration,
		r.PushesTotal,
		r.HookDuration,
		r.HookErrors,
		r.ClientErrors,
		r.BuildInfo,
	)
	return r
}

// Register adds an extra collector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// Unregister removes a collector added with Register.
func (r *Registry) Unregister(c prometheus.Collector) bool {
	return r.registry.Unregister(c)
}

// ConnOpened records an accepted connection.
func (r *Registry) ConnOpened() {
	if r == nil {
		return
	}
	r.ConnectionsTotal.Inc()
}

// ObserveRequest records a finished request. A status of 0 is recorded as
// "aborted".
func (r *Registry) ObserveRequest(method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	label := "aborted"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.RequestsTotal.WithLabelValues(method, label).Inc()
	r.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObservePush records a push attempt outcome.
func (r *Registry) ObservePush(outcome string) {
	if r == nil {
		return
	}
	r.PushesTotal.WithLabelValues(outcome).Inc()
}

// ClientError records a rejected connection by error code.
func (r *Registry) ClientError(code string) {
	if r == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	r.ClientErrors.WithLabelValues(code).Inc()
}

// ObserveHook implements service.HookObserver.
func (r *Registry) ObserveHook(kind service.Kind, name string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.HookDuration.WithLabelValues(string(kind), name).Observe(d.Seconds())
	if err != nil {
		r.HookErrors.WithLabelValues(string(kind), name).Inc()
	}
}
