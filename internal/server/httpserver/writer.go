package httpserver

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"syscall"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
)

const defaultChunkSize = 32 * 1024

// Destination receives a response head and body.
type Destination interface {
	// WriteHead sends status and headers. It is called at most once.
	WriteHead(status int, header domain.Header) error
	Write(p []byte) (int, error)
	Flush() error
	// Closed is closed when the peer went away.
	Closed() <-chan struct{}
}

// WriteOutcome is the terminal state of a response write.
type WriteOutcome int

const (
	// WriteEnd means the whole response was written and flushed.
	WriteEnd WriteOutcome = iota
	// WriteAborted means the operation was cancelled or the peer went
	// away before the body was delivered.
	WriteAborted
	// WriteFailed means the destination or the body source failed.
	WriteFailed
)

func (o WriteOutcome) String() string {
	switch o {
	case WriteEnd:
		return "end"
	case WriteAborted:
		return "aborted"
	case WriteFailed:
		return "error"
	default:
		return "unknown"
	}
}

// WriteResult reports how a response write ended.
type WriteResult struct {
	Outcome WriteOutcome
	Err     error
	Written int64
	// Benign marks a connection reset while the server stops.
	Benign bool
}

// WriteOptions tunes WriteResponse.
type WriteOptions struct {
	// ChunkSize is the body read size (default: 32KiB).
	ChunkSize int
	// Stopping reports whether the server stops; connection resets are
	// then expected and logged at debug level.
	Stopping func() bool
	Logger   *slog.Logger
}

// WriteResponse streams resp to dst. The head is written once; the body,
// when allowed for method, is read by a separate goroutine and delivered
// chunk by chunk until the first of: op cancelled, peer gone, write or
// read failure, body complete. The first outcome wins and is returned.
func WriteResponse(op *operation.Operation, resp *domain.Response, method string, dst Destination, opts WriteOptions) WriteResult {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if op.Cancelled() {
		resp.Body.Discard()
		return WriteResult{Outcome: WriteAborted, Err: op.Err()}
	}

	bodyAllowed := resp.BodyAllowed(method)
	header := resp.Header.Clone()
	if n := resp.ContentLength(); n >= 0 && resp.Body != nil && !header.Has("content-length") && !noBodyStatus(resp.Status) {
		header.Set("content-length", strconv.FormatInt(n, 10))
	}
	if err := dst.WriteHead(resp.Status, header); err != nil {
		resp.Body.Discard()
		return failed(err, opts)
	}
	if !bodyAllowed {
		resp.Body.Discard()
		if err := dst.Flush(); err != nil {
			return failed(err, opts)
		}
		return WriteResult{Outcome: WriteEnd}
	}

	rc, err := resp.Body.Open()
	if err != nil {
		return failed(err, opts)
	}
	return stream(op, rc, dst, opts)
}

func stream(op *operation.Operation, rc io.ReadCloser, dst Destination, opts WriteOptions) WriteResult {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	stop := make(chan struct{})

	go func() {
		defer close(chunks)
		buf := make([]byte, opts.ChunkSize)
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-stop:
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var (
		result  WriteResult
		settled bool
		once    sync.Once
	)
	settle := func(r WriteResult) {
		once.Do(func() {
			result = r
			settled = true
			close(stop)
			// Closing the source unblocks a pending Read.
			_ = rc.Close()
		})
	}

	var written int64
	for !settled {
		select {
		case <-op.Done():
			settle(WriteResult{Outcome: WriteAborted, Err: op.Err(), Written: written})
		case <-dst.Closed():
			settle(WriteResult{Outcome: WriteAborted, Err: io.ErrClosedPipe, Written: written})
		case chunk, ok := <-chunks:
			if !ok {
				select {
				case err := <-readErr:
					r := failed(err, opts)
					r.Written = written
					settle(r)
					continue
				default:
				}
				if err := dst.Flush(); err != nil {
					r := failed(err, opts)
					r.Written = written
					settle(r)
					continue
				}
				settle(WriteResult{Outcome: WriteEnd, Written: written})
				continue
			}
			n, err := dst.Write(chunk)
			written += int64(n)
			if err == nil {
				err = dst.Flush()
			}
			if err != nil {
				r := failed(err, opts)
				r.Written = written
				settle(r)
			}
		}
	}
	return result
}

func failed(err error, opts WriteOptions) WriteResult {
	if errors.Is(err, syscall.ECONNRESET) && opts.Stopping != nil && opts.Stopping() {
		opts.Logger.Debug("connection reset while stopping", "error", err)
		return WriteResult{Outcome: WriteFailed, Err: err, Benign: true}
	}
	return WriteResult{Outcome: WriteFailed, Err: err}
}

func noBodyStatus(status int) bool {
	return status == 204 || status == 304 || (status >= 100 && status < 200)
}
