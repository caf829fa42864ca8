package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// pushExcludedHeaders are request headers never copied into a
// PUSH_PROMISE: the request-specific validator, headers HTTP/2 forbids in
// promised requests and hop-by-hop headers.
var pushExcludedHeaders = []string{
	"if-none-match",
	"host",
	"content-length",
	"content-encoding",
	"trailer",
	"te",
	"expect",
	"proxy-authorization",
	"connection",
	"keep-alive",
	"proxy-connection",
	"transfer-encoding",
	"upgrade",
	strings.ToLower(pushIDHeader),
}

// requestPusher implements service.Pusher for one request.
type requestPusher struct {
	server *Server
	req    *domain.Request
	sess   *session
	w      http.ResponseWriter
	log    *slog.Logger
}

func (p *requestPusher) skip(target service.PushTarget, reason string) error {
	p.log.Debug("push skipped", "path", target.Path, "reason", reason)
	p.server.metrics.ObservePush(metric.PushSkipped)
	return domain.ErrPushRejected.WithDetails(reason)
}

// Push promises target on the request's stream. Every rejection is
// reported as ErrPushRejected and leaves the current response untouched.
func (p *requestPusher) Push(target service.PushTarget) error {
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	switch {
	case !strings.HasPrefix(target.Path, "/"):
		return p.skip(target, "path is not absolute")
	case !p.server.opts.HTTP2:
		return p.skip(target, "http2 is disabled")
	case !p.req.IsHTTP2():
		return p.skip(target, "request is not http2")
	case method != http.MethodGet && method != http.MethodHead:
		return p.skip(target, "method cannot be pushed")
	case p.req.Op.Cancelled():
		return p.skip(target, "request is cancelled")
	}

	pusher, ok := findPusher(p.w)
	if !ok {
		return p.skip(target, "writer cannot push")
	}
	if p.sess == nil || p.sess.remaining() <= 0 {
		return p.skip(target, "push window exhausted")
	}
	if p.server.ctrl.PushPrevented(service.PushTarget{Path: target.Path, Method: method}, p.req) {
		p.log.Debug("push prevented by a service", "path", target.Path)
		p.server.metrics.ObservePush(metric.PushPrevented)
		return domain.ErrPushRejected.WithDetails("prevented by a service")
	}

	child := p.pushedRequest(target.Path, method)
	p.sess.register(child)

	header := http.Header{}
	child.Header.Without("host").WriteTo(header)
	header.Set(pushIDHeader, child.ID)

	if err := pusher.Push(target.Path, &http.PushOptions{Method: method, Header: header}); err != nil {
		p.sess.claim(child.ID)
		child.Op.End()
		if errors.Is(err, http.ErrNotSupported) {
			return p.skip(target, "client disabled push")
		}
		p.log.Debug("push failed", "path", target.Path, "error", err)
		p.server.metrics.ObservePush(metric.PushSkipped)
		return domain.ErrPushRejected.WithCause(err)
	}

	p.log.Debug("push promised", "path", target.Path, "push_id", child.ID)
	p.server.metrics.ObservePush(metric.PushSent)
	return nil
}

// pushedRequest builds the promised request. It inherits the parent's
// headers and becomes a child of the parent's operation.
func (p *requestPusher) pushedRequest(target, method string) *domain.Request {
	path, rawQuery := domain.SplitTarget(target)
	header := p.req.Header.Without(pushExcludedHeaders...)
	if host := p.req.Header.Get("host"); host != "" {
		header.Set("host", host)
	}
	return &domain.Request{
		ID:         domain.NewID(),
		Method:     method,
		Origin:     p.req.Origin,
		Path:       path,
		RawQuery:   rawQuery,
		Header:     header,
		Proto:      p.req.Proto,
		ProtoMajor: p.req.ProtoMajor,
		RemoteAddr: p.req.RemoteAddr,
		Op:         operation.Start(p.req.Op),
		Parent:     p.req,
	}
}
