package domain

import (
	"bytes"
	"io"
	"sync"
)

// Payload is a request or response body. A buffered payload can be opened
// any number of times; a streamed payload can be opened once.
type Payload struct {
	buf      []byte
	buffered bool

	mu       sync.Mutex
	stream   io.Reader
	size     int64
	consumed bool
}

// BufferPayload returns a restartable payload over b. b must not be
// modified afterwards.
func BufferPayload(b []byte) *Payload {
	return &Payload{buf: b, buffered: true, size: int64(len(b))}
}

// StringPayload returns a restartable payload over s.
func StringPayload(s string) *Payload {
	return BufferPayload([]byte(s))
}

// StreamPayload returns a single-pass payload reading r. size is the
// number of bytes r yields, or -1 when unknown.
func StreamPayload(r io.Reader, size int64) *Payload {
	if size < 0 {
		size = -1
	}
	return &Payload{stream: r, size: size}
}

// Buffered reports whether the payload can be opened more than once.
func (p *Payload) Buffered() bool {
	return p != nil && p.buffered
}

// Len returns the payload size in bytes, or -1 when unknown.
func (p *Payload) Len() int64 {
	if p == nil {
		return 0
	}
	return p.size
}

// Open returns a reader over the payload. Streamed payloads fail with
// ErrPayloadConsumed on the second call.
func (p *Payload) Open() (io.ReadCloser, error) {
	if p == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if p.buffered {
		return io.NopCloser(bytes.NewReader(p.buf)), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumed {
		return nil, ErrPayloadConsumed
	}
	p.consumed = true
	if rc, ok := p.stream.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(p.stream), nil
}

// Bytes reads the whole payload.
func (p *Payload) Bytes() ([]byte, error) {
	if p.Buffered() {
		return bytes.Clone(p.buf), nil
	}
	rc, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Discard releases a streamed payload that will not be read.
func (p *Payload) Discard() {
	if p == nil || p.buffered {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumed {
		return
	}
	p.consumed = true
	if c, ok := p.stream.(io.Closer); ok {
		_ = c.Close()
	}
}
