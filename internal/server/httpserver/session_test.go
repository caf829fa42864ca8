package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
)

func TestSession_Reserve(t *testing.T) {
	root := operation.Start(nil)
	defer root.End()
	s := newSession(1, root, 100)

	tests := []struct {
		name      string
		n         int64
		want      bool
		remaining int64
	}{
		{"unknown length", -1, false, 100},
		{"fits", 60, true, 40},
		{"too large", 41, false, 40},
		{"exact rest", 40, true, 0},
		{"empty body on exhausted window", 0, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.reserve(tt.n); got != tt.want {
				t.Errorf("reserve(%d) = %v, want %v", tt.n, got, tt.want)
			}
			if got := s.remaining(); got != tt.remaining {
				t.Errorf("remaining() = %d, want %d", got, tt.remaining)
			}
		})
	}
}

func TestSession_ReserveConcurrent(t *testing.T) {
	root := operation.Start(nil)
	defer root.End()
	s := newSession(1, root, 1000)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.reserve(100) {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got != 10 {
		t.Errorf("successful reservations = %d, want 10", got)
	}
	if s.remaining() != 0 {
		t.Errorf("remaining() = %d, want 0", s.remaining())
	}
}

func TestSession_ClaimAndClose(t *testing.T) {
	root := operation.Start(nil)
	defer root.End()
	s := newSession(1, root, DefaultPushWindow)

	claimed := &domain.Request{ID: domain.NewID(), Op: operation.Start(s.op)}
	orphan := &domain.Request{ID: domain.NewID(), Op: operation.Start(s.op)}
	s.register(claimed)
	s.register(orphan)

	if got := s.claim(claimed.ID); got != claimed {
		t.Fatalf("claim() = %v, want the registered request", got)
	}
	if got := s.claim(claimed.ID); got != nil {
		t.Error("a push must be claimed once")
	}

	s.close()

	if !orphan.Op.Ended() {
		t.Error("close must end unclaimed pushes")
	}
	if claimed.Op.Ended() {
		t.Error("close must leave claimed pushes to their handler")
	}
	if !s.op.Ended() {
		t.Error("close must end the session operation")
	}
	claimed.Op.End()
}

func TestWithSession(t *testing.T) {
	root := operation.Start(nil)
	defer root.End()
	tracker := newConnTracker(root, DefaultPushWindow, nil, discardLogger())

	server, client := net.Pipe()
	defer client.Close()
	tc := tracker.track(server)

	ctx := withSession(context.Background(), tc)
	if sessionFrom(ctx) != tc.session {
		t.Fatal("session not found in connection context")
	}
	if tracker.count() != 1 {
		t.Errorf("count() = %d, want 1", tracker.count())
	}

	if err := tc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	_ = tc.Close()
	if tracker.count() != 0 {
		t.Errorf("count() after close = %d, want 0", tracker.count())
	}
	if !tc.session.op.Ended() {
		t.Error("closing the connection must end its session")
	}

	if sessionFrom(withSession(context.Background(), client)) != nil {
		t.Error("untracked connections carry no session")
	}
}

func TestTrackingListener_Refuse(t *testing.T) {
	root := operation.Start(nil)
	defer root.End()
	tracker := newConnTracker(root, DefaultPushWindow, nil, discardLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	tl := &trackingListener{Listener: ln, tracker: tracker}
	defer tl.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := tl.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	tracker.refuse.Store(true)
	refused, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := refused.Read(buf); err == nil {
		t.Error("refused connection must be closed")
	}
	refused.Close()

	tracker.refuse.Store(false)
	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	got := <-accepted
	defer got.Close()
	if unwrapTracked(got) == nil {
		t.Error("accepted connection is not tracked")
	}
}

func TestPendingRequest_Terminate(t *testing.T) {
	t.Run("before head", func(t *testing.T) {
		op := operation.Start(nil)
		tracker := newRequestTracker()
		rec := httptest.NewRecorder()
		p := tracker.add(rec, httptest.NewRequest("GET", "/", nil), op)

		p.terminate(http.StatusServiceUnavailable, "stopping", errors.New("stop"))

		if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "stopping" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Connection") != "close" {
			t.Error("terminated responses close the connection")
		}
		if !op.Cancelled() {
			t.Error("terminate must abort the request operation")
		}
		if err := p.WriteHead(http.StatusOK, domain.Header{}); err == nil {
			t.Error("writes after terminate must fail")
		}

		p.finish()
		if tracker.count() != 0 {
			t.Errorf("count() = %d, want 0", tracker.count())
		}
	})

	t.Run("after head", func(t *testing.T) {
		op := operation.Start(nil)
		tracker := newRequestTracker()
		rec := httptest.NewRecorder()
		p := tracker.add(rec, httptest.NewRequest("GET", "/", nil), op)

		if err := p.WriteHead(http.StatusOK, domain.NewHeader("content-type", "text/plain")); err != nil {
			t.Fatalf("WriteHead() error = %v", err)
		}
		p.terminate(http.StatusServiceUnavailable, "stopping", errors.New("stop"))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want the head already sent", rec.Code)
		}
		if !p.Terminated() || !op.Cancelled() {
			t.Error("terminate must mark the request and abort it")
		}
		p.finish()
	})
}
