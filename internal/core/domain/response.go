package domain

import (
	"net/http"
	"strconv"
)

// Response describes what to write for a request. Responses are treated as
// immutable once returned by a hook; helpers return copies.
type Response struct {
	Status int
	// StatusText names the status in logs and hooks. net/http always
	// writes the standard reason phrase on the wire.
	StatusText string
	Header     Header
	Body       *Payload
	Timing     *Timing

	// SuppressBody writes the head only.
	SuppressBody bool

	aborted bool
}

var abortedResponse = &Response{aborted: true}

// AbortedResponse returns the sentinel meaning nothing must be written.
func AbortedResponse() *Response {
	return abortedResponse
}

// Aborted reports whether r is the aborted sentinel.
func (r *Response) Aborted() bool {
	return r != nil && r.aborted
}

// TextResponse returns a text/plain response.
func TextResponse(status int, text string) *Response {
	return &Response{
		Status: status,
		Header: NewHeader("content-type", "text/plain; charset=utf-8"),
		Body:   StringPayload(text),
	}
}

// Text returns the status text, defaulting to the standard one.
func (r *Response) Text() string {
	if r.StatusText != "" {
		return r.StatusText
	}
	return http.StatusText(r.Status)
}

// Clone returns a shallow copy with its own header mapping.
func (r *Response) Clone() *Response {
	if r == nil {
		return &Response{Header: Header{}}
	}
	out := *r
	out.Header = r.Header.Clone()
	return &out
}

// WithHeader returns a copy of r with name set to value.
func (r *Response) WithHeader(name, value string) *Response {
	out := r.Clone()
	out.Header.Set(name, value)
	return out
}

// WithHeaders returns a copy of r with h composed over its headers.
func (r *Response) WithHeaders(h Header) *Response {
	out := r.Clone()
	out.Header = ComposeHeaders(out.Header, h)
	return out
}

// ContentLength returns the body length, or -1 when unknown.
func (r *Response) ContentLength() int64 {
	if r == nil || r.Body == nil {
		return 0
	}
	if cl := r.Header.Get("content-length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	return r.Body.Len()
}

// BodyAllowed reports whether a body may follow a head for method.
func (r *Response) BodyAllowed(method string) bool {
	switch {
	case r.SuppressBody, r.Body == nil, method == http.MethodHead:
		return false
	case r.Status == http.StatusNoContent, r.Status == http.StatusNotModified:
		return false
	case r.Status >= 100 && r.Status < 200:
		return false
	}
	return true
}

// ComposeResponses merges over into base: non-zero status, status text,
// body and the suppress flag of over win; headers are composed and timings
// merged. Neither input is modified.
func ComposeResponses(base, over *Response) *Response {
	if base == nil {
		return over.Clone()
	}
	out := base.Clone()
	if over == nil {
		return out
	}
	if over.Status != 0 {
		out.Status = over.Status
	}
	if over.StatusText != "" {
		out.StatusText = over.StatusText
	}
	if over.Body != nil {
		out.Body = over.Body
	}
	if over.SuppressBody {
		out.SuppressBody = true
	}
	out.Header = ComposeHeaders(out.Header, over.Header)
	if over.Timing != nil {
		if out.Timing == nil {
			out.Timing = NewTiming()
		} else if out.Timing == base.Timing {
			t := NewTiming()
			t.Merge(base.Timing)
			out.Timing = t
		}
		out.Timing.Merge(over.Timing)
	}
	return out
}
