package domain

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/devserve-go/internal/core/operation"
)

// Request is an immutable view of an incoming request. Redirect returns a
// new Request instead of editing the receiver.
type Request struct {
	ID         string
	Method     string
	Origin     string // scheme://host[:port]
	Path       string
	RawQuery   string
	Header     Header
	Proto      string // e.g. "HTTP/1.1", "HTTP/2.0"
	ProtoMajor int
	RemoteAddr string
	Body       *Payload

	// Op is cancelled when the client goes away or the server stops.
	Op *operation.Operation

	// Parent is the request that pushed this one (HTTP/2 only).
	Parent *Request
	// Original is the request as received, before any redirection.
	Original *Request
}

// Redirection describes a request rewrite.
type Redirection struct {
	// Target replaces path and query when non-empty ("/path?query").
	Target string
	// Header entries are set on the rewritten request.
	Header Header
}

// NewID returns a new request ID.
func NewID() string {
	return ulid.Make().String()
}

// SplitTarget splits a request target into path and raw query.
func SplitTarget(target string) (path, rawQuery string) {
	path, rawQuery, _ = strings.Cut(target, "?")
	return path, rawQuery
}

// Target returns path and query as sent on the request line.
func (r *Request) Target() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// URL returns the absolute request URL.
func (r *Request) URL() string {
	return r.Origin + r.Target()
}

// IsHTTP2 reports whether the request arrived over HTTP/2.
func (r *Request) IsHTTP2() bool {
	return r.ProtoMajor == 2
}

// IsPush reports whether the request was synthesized by a server push.
func (r *Request) IsPush() bool {
	return r.Parent != nil
}

// Root returns the request as received.
func (r *Request) Root() *Request {
	if r.Original != nil {
		return r.Original
	}
	return r
}

// Context returns the request operation context.
func (r *Request) Context() context.Context {
	if r.Op == nil {
		return context.Background()
	}
	return r.Op.Context()
}

// Redirect returns a copy of r rewritten by rd. The copy keeps the
// original request reachable through Original.
func (r *Request) Redirect(rd Redirection) *Request {
	next := *r
	next.Original = r.Root()
	if rd.Target != "" {
		next.Path, next.RawQuery = SplitTarget(rd.Target)
	}
	next.Header = r.Header.Clone()
	for name, value := range rd.Header {
		next.Header.Set(name, value)
	}
	return &next
}
