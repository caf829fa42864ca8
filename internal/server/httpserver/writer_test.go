package httpserver

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
)

type fakeDest struct {
	mu       sync.Mutex
	status   int
	header   domain.Header
	body     bytes.Buffer
	flushes  int
	writeErr error
	closed   chan struct{}
}

func newFakeDest() *fakeDest {
	return &fakeDest{closed: make(chan struct{})}
}

func (d *fakeDest) WriteHead(status int, h domain.Header) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
	d.header = h
	return nil
}

func (d *fakeDest) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	return d.body.Write(p)
}

func (d *fakeDest) Flush() error {
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
	return nil
}

func (d *fakeDest) Closed() <-chan struct{} { return d.closed }

// blockingReader yields one chunk, then blocks until closed.
type blockingReader struct {
	first []byte
	sent  bool
	done  chan struct{}
	once  sync.Once
}

func newBlockingReader(first string) *blockingReader {
	return &blockingReader{first: []byte(first), done: make(chan struct{})}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.first), nil
	}
	<-r.done
	return 0, io.ErrClosedPipe
}

func (r *blockingReader) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestWriteResponse_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		resp        *domain.Response
		method      string
		wantOutcome WriteOutcome
		wantBody    string
		wantLength  string
	}{
		{
			name:        "buffered body",
			resp:        domain.TextResponse(http.StatusOK, "hello"),
			method:      http.MethodGet,
			wantOutcome: WriteEnd,
			wantBody:    "hello",
			wantLength:  "5",
		},
		{
			name:        "head request keeps content-length",
			resp:        domain.TextResponse(http.StatusOK, "hello"),
			method:      http.MethodHead,
			wantOutcome: WriteEnd,
			wantLength:  "5",
		},
		{
			name:        "no content drops body",
			resp:        &domain.Response{Status: http.StatusNoContent, Body: domain.StringPayload("x")},
			method:      http.MethodGet,
			wantOutcome: WriteEnd,
		},
		{
			name:        "stream of unknown length",
			resp:        &domain.Response{Status: http.StatusOK, Body: domain.StreamPayload(strings.NewReader(strings.Repeat("a", 100)), -1)},
			method:      http.MethodGet,
			wantOutcome: WriteEnd,
			wantBody:    strings.Repeat("a", 100),
		},
		{
			name:        "read failure",
			resp:        &domain.Response{Status: http.StatusOK, Body: domain.StreamPayload(failingReader{errors.New("disk gone")}, -1)},
			method:      http.MethodGet,
			wantOutcome: WriteFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := operation.Start(nil)
			defer op.End()
			dst := newFakeDest()

			res := WriteResponse(op, tt.resp, tt.method, dst, WriteOptions{ChunkSize: 16, Logger: discardLogger()})

			if res.Outcome != tt.wantOutcome {
				t.Fatalf("outcome = %v, want %v (err %v)", res.Outcome, tt.wantOutcome, res.Err)
			}
			if got := dst.body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if got := dst.header.Get("content-length"); got != tt.wantLength {
				t.Errorf("content-length = %q, want %q", got, tt.wantLength)
			}
		})
	}
}

func TestWriteResponse_CancelledBeforeHead(t *testing.T) {
	op := operation.Start(nil)
	op.Abort(errors.New("client left"))
	dst := newFakeDest()

	res := WriteResponse(op, domain.TextResponse(http.StatusOK, "x"), http.MethodGet, dst, WriteOptions{})

	if res.Outcome != WriteAborted {
		t.Fatalf("outcome = %v, want aborted", res.Outcome)
	}
	if dst.status != 0 {
		t.Errorf("head written with status %d", dst.status)
	}
}

func TestWriteResponse_AbortDuringStream(t *testing.T) {
	op := operation.Start(nil)
	dst := newFakeDest()
	body := newBlockingReader("first")
	resp := &domain.Response{Status: http.StatusOK, Body: domain.StreamPayload(body, -1)}

	done := make(chan WriteResult, 1)
	go func() {
		done <- WriteResponse(op, resp, http.MethodGet, dst, WriteOptions{})
	}()

	time.Sleep(50 * time.Millisecond)
	op.Abort(errors.New("stop"))

	select {
	case res := <-done:
		if res.Outcome != WriteAborted {
			t.Errorf("outcome = %v, want aborted", res.Outcome)
		}
		if res.Written != int64(len("first")) {
			t.Errorf("written = %d, want %d", res.Written, len("first"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WriteResponse did not return after abort")
	}
}

func TestWriteResponse_PeerGone(t *testing.T) {
	op := operation.Start(nil)
	defer op.End()
	dst := newFakeDest()
	resp := &domain.Response{Status: http.StatusOK, Body: domain.StreamPayload(newBlockingReader("x"), -1)}

	done := make(chan WriteResult, 1)
	go func() {
		done <- WriteResponse(op, resp, http.MethodGet, dst, WriteOptions{})
	}()
	close(dst.closed)

	select {
	case res := <-done:
		if res.Outcome != WriteAborted {
			t.Errorf("outcome = %v, want aborted", res.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WriteResponse did not return after the peer left")
	}
}

func TestWriteResponse_ResetWhileStopping(t *testing.T) {
	tests := []struct {
		name       string
		stopping   bool
		wantBenign bool
	}{
		{"running", false, false},
		{"stopping", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := operation.Start(nil)
			defer op.End()
			dst := newFakeDest()
			dst.writeErr = syscall.ECONNRESET

			res := WriteResponse(op, domain.TextResponse(http.StatusOK, "x"), http.MethodGet, dst, WriteOptions{
				Stopping: func() bool { return tt.stopping },
				Logger:   discardLogger(),
			})

			if res.Outcome != WriteFailed {
				t.Fatalf("outcome = %v, want error", res.Outcome)
			}
			if res.Benign != tt.wantBenign {
				t.Errorf("benign = %v, want %v", res.Benign, tt.wantBenign)
			}
		})
	}
}

func TestWriteOutcome_String(t *testing.T) {
	for o, want := range map[WriteOutcome]string{
		WriteEnd:        "end",
		WriteAborted:    "aborted",
		WriteFailed:     "error",
		WriteOutcome(9): "unknown",
	} {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", o, got, want)
		}
	}
}
