package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/infra/shutdown"
	"github.com/yndnr/devserve-go/internal/infra/tlsroots"
	"github.com/yndnr/devserve-go/internal/server/polyglot"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// terminateWait bounds how long Stop waits for terminated handlers to
// return before closing their connections.
const terminateWait = 2 * time.Second

// Status is the server lifecycle state.
type Status int32

const (
	StatusStarting Status = iota
	StatusOpened
	StatusStopping
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusOpened:
		return "opened"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server is a running HTTP server.
type Server struct {
	opts    Options
	logger  *slog.Logger
	ctrl    *service.Controller
	metrics *metric.Registry

	srv      *http.Server
	ln       net.Listener
	poly     *polyglot.Listener
	certs    *tlsroots.Watcher
	conns    *connTracker
	requests *requestTracker
	// op parents every connection operation.
	op *operation.Operation

	host   string
	port   int
	origin string

	status atomic.Int32
	wg     sync.WaitGroup

	stopStarted atomic.Bool
	notifying   atomic.Bool // stop callbacks or serverStopped hooks running
	stopped     chan struct{}
	reason      atomic.Value // domain.StopReason
	stopSignals func()

	cbMu       sync.Mutex
	callbacks  []func(domain.StopReason)
	cbNotified bool
	cbReason   domain.StopReason
	collector  *metric.Collector
}

// Start validates opts, binds a port and serves until Stop.
//
// Configuration failures are returned before any socket is bound. ctx
// only bounds the start: cancelling it before the server listens unbinds
// the socket; later cancellation has no effect and Stop must be used.
func Start(ctx context.Context, opts Options) (*Server, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctrlOpts := service.Options{Logger: opts.Logger}
	if opts.Metrics != nil {
		ctrlOpts.Observer = opts.Metrics
	}
	ctrl, err := service.NewController(ctrlOpts, opts.Services...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		ctrl:     ctrl,
		metrics:  opts.Metrics,
		requests: newRequestTracker(),
		op:       operation.Start(nil),
		stopped:  make(chan struct{}),
	}
	s.status.Store(int32(StatusStarting))
	s.conns = newConnTracker(s.op, opts.PushWindow, opts.Metrics, opts.Logger)

	var tlsConfig *tls.Config
	if opts.HTTPS {
		if tlsConfig, err = s.loadTLS(); err != nil {
			return nil, err
		}
	}

	startOp := operation.FromContext(ctx)
	defer startOp.End()

	listenHost, originHost, err := resolveHost(startOp.Context(), opts.Hostname)
	if err != nil {
		s.stopCerts()
		return nil, err
	}
	ln, err := s.listen(startOp.Context(), listenHost)
	if err == nil && startOp.Cancelled() {
		_ = ln.Close()
		err = startOp.Err()
	}
	if err != nil {
		s.stopCerts()
		if startOp.Cancelled() {
			return nil, fmt.Errorf("httpserver: start cancelled: %w", startOp.Err())
		}
		return nil, err
	}

	s.host = originHost
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.origin = buildOrigin(opts.HTTPS, originHost, s.port)
	s.ln = &trackingListener{Listener: ln, tracker: s.conns}

	if err := s.serve(tlsConfig); err != nil {
		_ = ln.Close()
		s.stopCerts()
		return nil, err
	}

	if opts.Metrics != nil {
		s.collector = metric.NewCollector(s.Stats)
		if err := opts.Metrics.Register(s.collector); err != nil {
			s.logger.Warn("server metrics not registered", "error", err)
			s.collector = nil
		}
	}
	if opts.StopOnSignals {
		s.stopSignals = shutdown.Notify(func(reason domain.StopReason) {
			go s.Stop(reason)
		})
	}

	s.logger.Info("server listening",
		"origin", s.origin,
		"https", opts.HTTPS,
		"http2", opts.HTTP2,
		"polyglot", opts.polyglot(),
	)
	ctrl.NotifyListening(service.ListeningInfo{
		Origin: s.origin,
		Port:   s.port,
		HTTPS:  opts.HTTPS,
		HTTP2:  opts.HTTP2,
	})
	return s, nil
}

func (s *Server) loadTLS() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.opts.ClientCAs != nil {
		s.opts.ClientCAs.Apply(cfg)
	}

	if s.opts.WatchCertificates {
		w, err := tlsroots.NewWatcher(s.opts.TLS.CertFile, s.opts.TLS.KeyFile,
			tlsroots.WithLogger(s.logger),
			tlsroots.WithOnReload(func(err error) {
				if err != nil {
					s.logger.Warn("certificate reload failed, keeping previous", "error", err)
				}
			}),
		)
		if err != nil {
			return nil, domain.ErrInvalidCertificate.WithCause(err)
		}
		s.certs = w
		cfg.GetCertificate = w.GetCertificate
		w.StartAsync()
		return cfg, nil
	}

	cert, err := tlsroots.KeyPair(s.opts.TLS)
	if err != nil {
		return nil, domain.ErrInvalidCertificate.WithCause(err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}

func (s *Server) stopCerts() {
	if s.certs != nil {
		s.certs.Stop()
	}
}

func (s *Server) listen(ctx context.Context, host string) (net.Listener, error) {
	if s.opts.PortHint > 0 {
		return listenRange(ctx, host, s.opts.PortHint, s.opts.PortRange)
	}
	return listenPort(ctx, host, s.opts.Port)
}

// serve builds the http.Server and starts serving on the transport the
// options ask for: plain, TLS, or polyglot.
func (s *Server) serve(tlsConfig *tls.Config) error {
	var handler http.Handler = s
	if s.opts.polyglot() && !s.opts.AllowHTTPRequestOnHTTPS {
		handler = Chain(handler, RedirectToHTTPS(s.Origin))
	}
	handler = Chain(handler,
		RequestID(),
		AccessLog(s.logger, s.metrics),
		Recover(s.logger),
	)

	s.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
		ConnContext:       withSession,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		TLSConfig:         tlsConfig,
	}

	h2s := &http2.Server{IdleTimeout: s.opts.IdleTimeout}
	switch {
	case s.opts.HTTP2 && s.opts.HTTPS:
		if err := http2.ConfigureServer(s.srv, h2s); err != nil {
			return fmt.Errorf("httpserver: configure http2: %w", err)
		}
	case s.opts.HTTP2:
		s.srv.Handler = h2c.NewHandler(handler, h2s)
	case s.opts.HTTPS:
		// An empty map disables HTTP/2 negotiation.
		s.srv.TLSNextProto = map[string]func(*http.Server, *tls.Conn, http.Handler){}
		s.srv.TLSConfig.NextProtos = []string{"http/1.1"}
	}

	s.status.Store(int32(StatusOpened))

	switch {
	case s.opts.polyglot():
		poly, err := polyglot.New(s.ln, polyglot.Config{
			TLSConfig:    s.srv.TLSConfig,
			SniffTimeout: s.opts.SniffTimeout,
			Logger:       s.logger,
			OnClientError: func(_ net.Conn, err error) {
				s.metrics.ClientError(domain.GetErrorCode(err))
			},
		})
		if err != nil {
			return err
		}
		s.poly = poly
		s.goServe(poly.TLS())
		s.goServe(poly.HTTP())
	case s.opts.HTTPS:
		s.goServe(tls.NewListener(s.ln, s.srv.TLSConfig))
	default:
		s.goServe(s.ln)
	}
	return nil
}

func (s *Server) goServe(ln net.Listener) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("serve failed", "addr", ln.Addr().String(), "error", err)
		}
	}()
}

// resolveHost returns the address to listen on and the host used in the
// origin. Empty and unspecified hostnames listen on all interfaces.
func resolveHost(ctx context.Context, hostname string) (listen, origin string, err error) {
	if hostname == "" {
		return "", "localhost", nil
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if ip.IsUnspecified() {
			return hostname, "localhost", nil
		}
		return hostname, hostname, nil
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil {
		return "", "", domain.ErrHostnameUnresolved.WithDetails(hostname).WithCause(err)
	}
	if len(addrs) == 0 {
		return "", "", domain.ErrHostnameUnresolved.WithDetails(hostname)
	}
	return hostname, hostname, nil
}

func buildOrigin(https bool, host string, port int) string {
	scheme := "http"
	if https {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Origin returns the server origin, e.g. "https://localhost:8443".
func (s *Server) Origin() string {
	return s.origin
}

// originFor returns the origin a request arrived on. Plain requests
// served on the https socket get the http origin.
func (s *Server) originFor(r *http.Request) string {
	if s.opts.HTTPS && r.TLS == nil {
		return buildOrigin(false, s.host, s.port)
	}
	return s.origin
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Status returns the lifecycle state.
func (s *Server) Status() Status {
	return Status(s.status.Load())
}

func (s *Server) stopping() bool {
	return s.Status() >= StatusStopping
}

// Stats returns the number of open connections and pending requests.
func (s *Server) Stats() metric.Stats {
	return metric.Stats{
		OpenConnections: s.conns.count(),
		PendingRequests: s.requests.count(),
	}
}

// Services returns the registered services.
func (s *Server) Services() []*service.Service {
	return s.ctrl.Services()
}

// Stopped is closed once Stop completed.
func (s *Server) Stopped() <-chan struct{} {
	return s.stopped
}

// Reason returns the stop reason, or "" while the server runs.
func (s *Server) Reason() domain.StopReason {
	select {
	case <-s.stopped:
		return s.stopReason()
	default:
		return ""
	}
}

func (s *Server) stopReason() domain.StopReason {
	r, _ := s.reason.Load().(domain.StopReason)
	return r
}

// OnStop registers fn to run when Stop starts, in registration order.
// Once stop callbacks ran, fn is called immediately with the reason.
func (s *Server) OnStop(fn func(domain.StopReason)) {
	s.cbMu.Lock()
	if s.cbNotified {
		reason := s.cbReason
		s.cbMu.Unlock()
		fn(reason)
		return
	}
	s.callbacks = append(s.callbacks, fn)
	s.cbMu.Unlock()
}

func (s *Server) notifyStop(reason domain.StopReason) {
	s.cbMu.Lock()
	callbacks := s.callbacks
	s.callbacks = nil
	s.cbNotified = true
	s.cbReason = reason
	s.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(reason)
	}
}

// Stop shuts the server down and returns the reason it stopped with.
// Every call waits for the shutdown and only the first reason counts.
// A call made from a stop callback or a serverStopped hook returns the
// first reason without waiting.
func (s *Server) Stop(reason domain.StopReason) domain.StopReason {
	if reason == "" {
		reason = domain.ReasonNotSpecified
	}
	if s.stopStarted.CompareAndSwap(false, true) {
		s.reason.Store(reason)
		s.shutdown(reason)
		return reason
	}
	if s.notifying.Load() {
		return s.stopReason()
	}
	<-s.stopped
	return s.stopReason()
}

func (s *Server) shutdown(reason domain.StopReason) {
	s.status.Store(int32(StatusStopping))
	s.logger.Info("server stopping", "reason", reason.String())
	if s.stopSignals != nil {
		s.stopSignals()
	}

	s.notifying.Store(true)
	s.notifyStop(reason)
	s.notifying.Store(false)

	s.conns.refuse.Store(true)
	s.srv.SetKeepAlivesEnabled(false)

	if s.opts.StopGracePeriod > 0 {
		s.drain(s.opts.StopGracePeriod)
	}

	cause := domain.ErrServerStopping.WithDetails(reason.String())
	pending := s.requests.pending.Values()
	for _, p := range pending {
		p.terminate(reason.Status(), reason.String(), cause)
	}
	waitAll(pending, terminateWait)

	s.conns.closeAll()
	s.op.Abort(cause)

	if err := s.srv.Close(); err != nil {
		s.logger.Debug("close http server", "error", err)
	}
	if s.poly != nil {
		if err := s.poly.Close(); err != nil {
			s.logger.Debug("close polyglot listener", "error", err)
		}
	}
	_ = s.ln.Close()
	s.wg.Wait()
	s.stopCerts()
	if s.collector != nil {
		s.metrics.Unregister(s.collector)
	}

	s.notifying.Store(true)
	s.ctrl.NotifyStopped(service.StoppedInfo{Reason: reason})
	s.notifying.Store(false)
	s.status.Store(int32(StatusStopped))
	s.logger.Info("server stopped", "reason", reason.String())
	close(s.stopped)
}

// drain waits until no request is pending or d elapsed.
func (s *Server) drain(d time.Duration) {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for s.requests.count() > 0 {
		select {
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

func waitAll(pending []*pendingRequest, d time.Duration) {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for _, p := range pending {
		select {
		case <-p.done:
		case <-deadline.C:
			return
		}
	}
}
