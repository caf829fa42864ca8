package httpserver

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
	"github.com/yndnr/devserve-go/pkg/cmap"
)

var (
	errTerminated = errors.New("httpserver: response terminated by shutdown")
	errHeaderSent = errors.New("httpserver: response header already sent")
)

// connTracker tracks every live connection and its session.
type connTracker struct {
	conns  *cmap.Map[uint64, *trackedConn]
	nextID atomic.Uint64
	refuse atomic.Bool

	parent     *operation.Operation
	pushWindow int64
	metrics    *metric.Registry
	logger     *slog.Logger
}

func newConnTracker(parent *operation.Operation, pushWindow int64, metrics *metric.Registry, logger *slog.Logger) *connTracker {
	return &connTracker{
		conns:      cmap.New[uint64, *trackedConn](),
		parent:     parent,
		pushWindow: pushWindow,
		metrics:    metrics,
		logger:     logger,
	}
}

func (t *connTracker) track(c net.Conn) *trackedConn {
	id := t.nextID.Add(1)
	tc := &trackedConn{
		Conn:    c,
		id:      id,
		tracker: t,
		session: newSession(id, t.parent, t.pushWindow),
	}
	t.conns.Set(id, tc)
	t.metrics.ConnOpened()
	return tc
}

// closeAll force-closes every tracked connection.
func (t *connTracker) closeAll() {
	for _, c := range t.conns.Drain() {
		if err := c.Close(); err != nil {
			t.logger.Debug("close connection", "conn_id", c.id, "error", err)
		}
	}
}

func (t *connTracker) count() int {
	return t.conns.Count()
}

// trackingListener registers accepted connections and refuses new ones
// once the server stops.
type trackingListener struct {
	net.Listener
	tracker *connTracker
}

// Accept implements net.Listener.
func (l *trackingListener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.tracker.refuse.Load() {
			_ = c.Close()
			continue
		}
		return l.tracker.track(c), nil
	}
}

// trackedConn removes itself from its tracker on close.
type trackedConn struct {
	net.Conn
	id      uint64
	tracker *connTracker
	session *session
	closed  atomic.Bool
	err     error
	once    sync.Once
}

// Close implements net.Conn.
func (c *trackedConn) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		c.tracker.conns.Delete(c.id)
		c.session.close()
		c.err = c.Conn.Close()
	})
	return c.err
}

// ConnID returns the tracker identity of the connection.
func (c *trackedConn) ConnID() uint64 {
	return c.id
}

// unwrapTracked finds the trackedConn below TLS and sniffing wrappers.
func unwrapTracked(c net.Conn) *trackedConn {
	for c != nil {
		if tc, ok := c.(*trackedConn); ok {
			return tc
		}
		nc, ok := c.(interface{ NetConn() net.Conn })
		if !ok {
			return nil
		}
		c = nc.NetConn()
	}
	return nil
}

// requestTracker tracks requests whose handler has not returned.
type requestTracker struct {
	pending *cmap.Map[uint64, *pendingRequest]
	nextID  atomic.Uint64
}

func newRequestTracker() *requestTracker {
	return &requestTracker{pending: cmap.New[uint64, *pendingRequest]()}
}

func (t *requestTracker) add(w http.ResponseWriter, r *http.Request, op *operation.Operation) *pendingRequest {
	p := &pendingRequest{
		id:      t.nextID.Add(1),
		op:      op,
		w:       w,
		gone:    r.Context().Done(),
		done:    make(chan struct{}),
		tracker: t,
	}
	t.pending.Set(p.id, p)
	return p
}

func (t *requestTracker) count() int {
	return t.pending.Count()
}

// pendingRequest guards the response writer of one in-flight request. It
// is the Destination responses are streamed to, and the handle shutdown
// uses to answer the request itself.
type pendingRequest struct {
	id uint64
	op *operation.Operation

	mu         sync.Mutex
	w          http.ResponseWriter
	headerSent bool
	finished   bool
	terminated atomic.Bool

	gone    <-chan struct{}
	done    chan struct{}
	tracker *requestTracker
}

// WriteHead implements Destination.
func (p *pendingRequest) WriteHead(status int, h domain.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated.Load() || p.finished {
		return errTerminated
	}
	if p.headerSent {
		return errHeaderSent
	}
	h.WriteTo(p.w.Header())
	p.w.WriteHeader(status)
	p.headerSent = true
	return nil
}

// Write implements Destination.
func (p *pendingRequest) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated.Load() || p.finished {
		return 0, errTerminated
	}
	return p.w.Write(b)
}

// Flush implements Destination.
func (p *pendingRequest) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated.Load() || p.finished {
		return errTerminated
	}
	err := http.NewResponseController(p.w).Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

// Closed implements Destination.
func (p *pendingRequest) Closed() <-chan struct{} {
	return p.gone
}

// HeaderSent reports whether the head was written.
func (p *pendingRequest) HeaderSent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headerSent
}

// Terminated reports whether shutdown took the response over.
func (p *pendingRequest) Terminated() bool {
	return p.terminated.Load()
}

// terminate answers the request with status and text unless a head was
// already sent, then aborts its operation. A writer blocked on a slow
// client keeps the lock; the response is then left to the connection
// close.
func (p *pendingRequest) terminate(status int, text string, reason error) {
	if !p.terminated.CompareAndSwap(false, true) {
		return
	}
	if p.mu.TryLock() {
		if !p.finished && !p.headerSent {
			h := p.w.Header()
			h.Set("Content-Type", "text/plain; charset=utf-8")
			h.Set("Cache-Control", "no-store")
			h.Set("Connection", "close")
			h.Set("Content-Length", strconv.Itoa(len(text)))
			p.w.WriteHeader(status)
			_, _ = p.w.Write([]byte(text))
			_ = http.NewResponseController(p.w).Flush()
			p.headerSent = true
		}
		p.mu.Unlock()
	}
	p.op.Abort(reason)
}

// finish marks the handler as returned. The writer must not be used
// afterwards.
func (p *pendingRequest) finish() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
	p.tracker.pending.Delete(p.id)
	close(p.done)
}
