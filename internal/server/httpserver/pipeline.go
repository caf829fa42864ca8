package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/telemetry/logger"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// pushIDHeader carries the ID of a promised request to its stream handler.
const pushIDHeader = "X-Devserve-Push-Id"

// ServeHTTP runs the request pipeline.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req *domain.Request
	if id := r.Header.Get(pushIDHeader); id != "" && sess != nil {
		req = sess.claim(id)
	}
	if req == nil {
		parent := s.op
		if sess != nil {
			parent = sess.op
		}
		req = s.buildRequest(r, operation.Start(parent))
	}
	req.Op.AddAbortSource(operation.ContextSource(r.Context()))
	defer req.Op.End()

	pending := s.requests.add(w, r, req.Op)
	defer pending.finish()

	if s.Status() != StatusOpened {
		s.refuse(pending)
		return
	}

	log := s.logger.With("request_id", req.ID)
	resp := s.respond(req, sess, w, log)
	if resp.Aborted() {
		if !pending.Terminated() {
			panic(http.ErrAbortHandler)
		}
		return
	}

	if req.IsPush() && (sess == nil || !sess.reserve(pushCost(resp, req.Method))) {
		log.Debug("push reset, window exhausted", "path", req.Path, "length", resp.ContentLength())
		s.metrics.ObservePush(metric.PushReset)
		resp.Body.Discard()
		panic(http.ErrAbortHandler)
	}

	res := WriteResponse(req.Op, resp, req.Method, pending, WriteOptions{
		Stopping: s.stopping,
		Logger:   log,
	})
	if res.Outcome == WriteEnd || pending.Terminated() {
		log.Debug("response written", "path", req.Path, "status", resp.Status, "status_text", resp.Text(), "written", res.Written)
		return
	}
	if res.Outcome == WriteFailed && !res.Benign {
		log.Warn("response write failed",
			"path", req.Path,
			"status", resp.Status,
			"status_text", resp.Text(),
			"written", res.Written,
			"error", res.Err,
		)
	}
	// Reset the stream so the client cannot take a truncated body as
	// complete.
	panic(http.ErrAbortHandler)
}

// pushCost is what a pushed response takes from the session push window.
// Only body bytes count.
func pushCost(resp *domain.Response, method string) int64 {
	if !resp.BodyAllowed(method) {
		return 0
	}
	return resp.ContentLength()
}

// refuse answers a request arriving while the server stops.
func (s *Server) refuse(p *pendingRequest) {
	reason := s.stopReason()
	resp := domain.TextResponse(reason.Status(), reason.String()).
		WithHeader("cache-control", "no-store").
		WithHeader("connection", "close")
	WriteResponse(p.op, resp, http.MethodGet, p, WriteOptions{Logger: s.logger})
}

func (s *Server) buildRequest(r *http.Request, op *operation.Operation) *domain.Request {
	header := domain.HeaderFromHTTP(r.Header)
	header.Set("host", r.Host)

	id := logger.RequestIDFromContext(r.Context())
	if id == "" {
		id = domain.NewID()
	}

	var body *domain.Payload
	if r.Body != nil && r.Body != http.NoBody {
		body = domain.StreamPayload(r.Body, r.ContentLength)
	}

	return &domain.Request{
		ID:         id,
		Method:     r.Method,
		Origin:     s.originFor(r),
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Header:     header,
		Proto:      r.Proto,
		ProtoMajor: r.ProtoMajor,
		RemoteAddr: r.RemoteAddr,
		Body:       body,
		Op:         op,
	}
}

// respond runs the hooks and returns the final response, or the aborted
// sentinel.
func (s *Server) respond(req *domain.Request, sess *session, w http.ResponseWriter, log *slog.Logger) *domain.Response {
	start := time.Now()
	timing := domain.NewTiming()
	pusher := &requestPusher{server: s, req: req, sess: sess, w: w, log: log}
	hc := service.NewHookContext(logger.WithLogger(req.Op.Context(), log), timing, log, pusher)

	stopWaiting := s.watchWaiting(req, start, log)
	working := s.ctrl.Redirect(req, hc)
	pusher.req = working

	resp := s.produce(working, hc, log)
	stopWaiting()
	if resp.Aborted() {
		timing.Add(domain.TimeToStartResponding, time.Since(start))
		return resp
	}

	if inject := s.ctrl.InjectHeaders(resp, hc); len(inject) > 0 {
		resp = resp.WithHeaders(inject)
	}
	timing.Add(domain.TimeToStartResponding, time.Since(start))
	if s.opts.ServerTiming {
		resp = s.withServerTiming(resp, timing, log)
	}
	s.ctrl.NotifyResponseReady(resp, hc)
	return resp
}

// produce runs handleRequest hooks and classifies their outcome.
func (s *Server) produce(req *domain.Request, hc *service.HookContext, log *slog.Logger) *domain.Response {
	res := operation.Await(req.Op, func(ctx context.Context) (*domain.Response, error) {
		return s.ctrl.Handle(logger.WithLogger(ctx, log), req, hc)
	})

	switch res.Outcome {
	case operation.OutcomeCancelled:
		if res.Value != nil {
			res.Value.Body.Discard()
		}
		log.Debug("request cancelled", "path", req.Path, "reason", req.Op.Reason())
		return domain.AbortedResponse()
	case operation.OutcomeFailed:
		return s.recoverError(req, hc, res.Err, log)
	}

	resp := res.Value
	if resp == nil {
		return domain.TextResponse(http.StatusNotImplemented, http.StatusText(http.StatusNotImplemented))
	}
	if resp.Status == 0 {
		resp = resp.Clone()
		resp.Status = http.StatusNotImplemented
	}
	return resp
}

// recoverError offers cause to handleError hooks. An unrecovered failure
// becomes a 500 and, with StopOnInternalError, stops the server.
func (s *Server) recoverError(req *domain.Request, hc *service.HookContext, cause error, log *slog.Logger) *domain.Response {
	floor := &domain.Response{Header: domain.NewHeader("cache-control", "no-store")}

	recovered, err := s.ctrl.RecoverError(logger.WithLogger(req.Op.Context(), log), cause, req, hc)
	if req.Op.Cancelled() {
		if recovered != nil {
			recovered.Body.Discard()
		}
		return domain.AbortedResponse()
	}
	if err == nil && recovered != nil {
		resp := domain.ComposeResponses(floor, recovered)
		if resp.Status == 0 {
			resp.Status = http.StatusInternalServerError
		}
		return resp
	}
	if err != nil {
		log.Error("handleError hook failed", "path", req.Path, "error", err)
	}

	log.Error("unhandled request error",
		"path", req.Path,
		"code", domain.GetErrorCode(cause),
		"error", domain.ErrHookFailed.WithCause(cause),
	)
	if s.opts.StopOnInternalError {
		go s.Stop(domain.ReasonInternalError)
	}
	return domain.ComposeResponses(floor, domain.TextResponse(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)))
}

func (s *Server) withServerTiming(resp *domain.Response, timing *domain.Timing, log *slog.Logger) *domain.Response {
	merged := domain.NewTiming()
	merged.Merge(timing)
	if resp.Timing != nil {
		merged.Merge(resp.Timing)
	}
	value, err := merged.ServerTimingHeader()
	if err != nil {
		log.Warn("server-timing header rejected", "error", err)
		return resp
	}
	if value == "" {
		return resp
	}
	return resp.WithHeaders(domain.NewHeader("server-timing", value))
}

// watchWaiting fires requestWaiting hooks once when no response is ready
// after RequestWaitingTimeout. The returned function cancels the watch.
func (s *Server) watchWaiting(req *domain.Request, start time.Time, log *slog.Logger) (stop func()) {
	if s.opts.RequestWaitingTimeout <= 0 {
		return func() {}
	}
	t := time.AfterFunc(s.opts.RequestWaitingTimeout, func() {
		elapsed := time.Since(start)
		log.Warn("request still waiting for a response",
			"method", req.Method,
			"path", req.Path,
			"elapsed_ms", elapsed.Milliseconds(),
		)
		s.ctrl.NotifyRequestWaiting(req, elapsed)
	})
	return func() { t.Stop() }
}
