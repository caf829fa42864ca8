package httpserver

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
)

// session is the per-connection state shared by the requests of one
// connection: its operation, the HTTP/2 push budget and the pushed
// requests waiting for their stream handler.
type session struct {
	id uint64
	op *operation.Operation

	window atomic.Int64

	mu     sync.Mutex
	pushes map[string]*domain.Request
}

func newSession(id uint64, parent *operation.Operation, window int64) *session {
	s := &session{
		id:     id,
		op:     operation.Start(parent),
		pushes: make(map[string]*domain.Request),
	}
	s.window.Store(window)
	return s
}

type sessionKey struct{}

// withSession stores the session of c in ctx. It is used as
// http.Server.ConnContext.
func withSession(ctx context.Context, c net.Conn) context.Context {
	tc := unwrapTracked(c)
	if tc == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, tc.session)
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

// remaining returns the push budget left.
func (s *session) remaining() int64 {
	return s.window.Load()
}

// reserve takes n bytes from the push budget. It fails without taking
// anything when n is unknown or larger than what is left.
func (s *session) reserve(n int64) bool {
	if n < 0 {
		return false
	}
	for {
		cur := s.window.Load()
		if n > cur {
			return false
		}
		if s.window.CompareAndSwap(cur, cur-n) {
			return true
		}
	}
}

// register records a promised request until its stream handler claims it.
func (s *session) register(req *domain.Request) {
	s.mu.Lock()
	s.pushes[req.ID] = req
	s.mu.Unlock()
}

// claim returns and forgets the promised request with id.
func (s *session) claim(id string) *domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pushes[id]
	if !ok {
		return nil
	}
	delete(s.pushes, id)
	return req
}

// close ends the session operation and every unclaimed push.
func (s *session) close() {
	s.mu.Lock()
	pushes := s.pushes
	s.pushes = make(map[string]*domain.Request)
	s.mu.Unlock()
	for _, req := range pushes {
		req.Op.End()
	}
	s.op.End()
}
