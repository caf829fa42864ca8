// Package polyglot serves TLS and plaintext HTTP on one listening socket.
//
// Each accepted connection is classified from its first byte without
// consuming it: 0x16 (TLS handshake record) goes to the TLS listener as a
// *tls.Conn, printable ASCII goes to the plaintext listener, and anything
// else is answered with a literal 400 response and closed. Classification
// runs in a per-connection goroutine, so a silent client never stalls the
// accept loop.
package polyglot

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/pkg/cmap"
)

// Protocol is the classification of a connection.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolPlain
	ProtocolTLS
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolPlain:
		return "plain"
	case ProtocolTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// tlsHandshakeRecord is the TLS record type of a ClientHello.
const tlsHandshakeRecord = 0x16

// BadRequestResponse is written to connections speaking neither protocol.
const BadRequestResponse = "HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"

// Classify maps the first byte of a connection to a protocol.
func Classify(b byte) Protocol {
	switch {
	case b == tlsHandshakeRecord:
		return ProtocolTLS
	case b >= 0x21 && b <= 0x7e:
		return ProtocolPlain
	default:
		return ProtocolUnknown
	}
}

// Config configures a Listener.
type Config struct {
	// TLSConfig serves the TLS branch. Required.
	TLSConfig *tls.Config
	// SniffTimeout bounds the wait for the first byte (default: 10s).
	SniffTimeout time.Duration
	// Backlog is the number of classified connections buffered per branch
	// (default: 64).
	Backlog int
	// OnClientError is called after a connection was rejected.
	OnClientError func(conn net.Conn, err error)
	// Logger receives throttled rejection logs.
	Logger *slog.Logger
}

// Listener demultiplexes one net.Listener into a plaintext and a TLS
// listener.
type Listener struct {
	ln     net.Listener
	cfg    Config
	logger *slog.Logger

	plain *branch
	tls   *branch

	sniffing *cmap.Map[uint64, net.Conn]
	nextID   atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	acceptErr atomic.Pointer[error]
	wg        sync.WaitGroup

	rejectLog rate.Sometimes
}

// New wraps ln and starts accepting. Close the returned Listener, not ln.
func New(ln net.Listener, cfg Config) (*Listener, error) {
	if cfg.TLSConfig == nil {
		return nil, domain.ErrMissingCertificate.WithDetails("polyglot listener needs a TLS configuration")
	}
	if cfg.SniffTimeout <= 0 {
		cfg.SniffTimeout = 10 * time.Second
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := &Listener{
		ln:        ln,
		cfg:       cfg,
		logger:    cfg.Logger,
		sniffing:  cmap.New[uint64, net.Conn](),
		done:      make(chan struct{}),
		rejectLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	l.plain = &branch{parent: l, conns: make(chan net.Conn, cfg.Backlog)}
	l.tls = &branch{parent: l, conns: make(chan net.Conn, cfg.Backlog)}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.acceptLoop()
	}()
	return l, nil
}

// HTTP returns the listener yielding plaintext connections.
func (l *Listener) HTTP() net.Listener { return l.plain }

// TLS returns the listener yielding *tls.Conn connections.
func (l *Listener) TLS() net.Listener { return l.tls }

// Addr returns the address of the underlying listener.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting, closes connections still being classified and
// waits for the classification goroutines. Connections already handed to
// a branch are owned by its consumer.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.closeErr = l.ln.Close()
		for _, c := range l.sniffing.Drain() {
			_ = c.Close()
		}
		l.wg.Wait()
		for _, b := range []*branch{l.plain, l.tls} {
			b.drain()
		}
	})
	return l.closeErr
}

func (l *Listener) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Listener) acceptLoop() {
	var tempDelay time.Duration
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if l.closed() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				l.logger.Warn("polyglot accept error, retrying", "error", err, "delay", tempDelay)
				select {
				case <-time.After(tempDelay):
					continue
				case <-l.done:
					return
				}
			}
			l.acceptErr.Store(&err)
			l.logger.Error("polyglot accept failed", "error", err)
			go l.Close()
			return
		}
		tempDelay = 0

		id := l.nextID.Add(1)
		l.sniffing.Set(id, c)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.sniff(id, c)
		}()
	}
}

// sniff classifies c and hands it to its branch.
func (l *Listener) sniff(id uint64, c net.Conn) {
	pc := &peekedConn{Conn: c, r: bufio.NewReader(c)}

	_ = c.SetReadDeadline(time.Now().Add(l.cfg.SniffTimeout))
	first, err := pc.r.Peek(1)
	_ = c.SetReadDeadline(time.Time{})

	if _, ok := l.sniffing.Pop(id); !ok {
		// Closed by Close while sniffing.
		return
	}

	if err != nil {
		l.reject(c, domain.ErrProtocolNoData.WithCause(err))
		return
	}

	switch Classify(first[0]) {
	case ProtocolTLS:
		l.tls.deliver(tls.Server(pc, l.cfg.TLSConfig))
	case ProtocolPlain:
		l.plain.deliver(pc)
	default:
		l.reject(c, domain.ErrProtocolUnknown.WithDetails(fmt.Sprintf("first byte 0x%02x", first[0])))
	}
}

func (l *Listener) reject(c net.Conn, err error) {
	_ = c.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = io.WriteString(c, BadRequestResponse)
	_ = c.Close()

	l.rejectLog.Do(func() {
		l.logger.Warn("rejected connection with unrecognized protocol",
			"remote", c.RemoteAddr().String(), "error", err)
	})
	if l.cfg.OnClientError != nil {
		l.cfg.OnClientError(c, err)
	}
}

// branch is one of the two demultiplexed listeners.
type branch struct {
	parent *Listener
	conns  chan net.Conn
}

func (b *branch) deliver(c net.Conn) {
	select {
	case b.conns <- c:
	case <-b.parent.done:
		_ = c.Close()
	}
}

func (b *branch) drain() {
	for {
		select {
		case c := <-b.conns:
			_ = c.Close()
		default:
			return
		}
	}
}

// Accept waits for the next connection of this branch.
func (b *branch) Accept() (net.Conn, error) {
	select {
	case c := <-b.conns:
		return c, nil
	case <-b.parent.done:
		if errp := b.parent.acceptErr.Load(); errp != nil {
			return nil, *errp
		}
		return nil, net.ErrClosed
	}
}

// Close closes the whole polyglot listener.
func (b *branch) Close() error {
	return b.parent.Close()
}

// Addr returns the shared listening address.
func (b *branch) Addr() net.Addr {
	return b.parent.Addr()
}

// peekedConn replays the bytes buffered during classification.
type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// NetConn returns the accepted connection.
func (c *peekedConn) NetConn() net.Conn {
	return c.Conn
}
