package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

// Hook binds a hook function to the service that registered it.
type Hook[F any] struct {
	Kind    Kind
	Service string
	Fn      F
}

// Hooks holds the ordered hook lists of every kind.
type Hooks struct {
	ServerListening       []Hook[ServerListeningFunc]
	RedirectRequest       []Hook[RedirectRequestFunc]
	HandleRequest         []Hook[HandleRequestFunc]
	HandleError           []Hook[HandleErrorFunc]
	OnResponsePush        []Hook[OnResponsePushFunc]
	InjectResponseHeaders []Hook[InjectResponseHeadersFunc]
	ResponseReady         []Hook[ResponseReadyFunc]
	RequestWaiting        []Hook[RequestWaitingFunc]
	ServerStopped         []Hook[ServerStoppedFunc]
}

// HookObserver receives the duration and outcome of every hook call.
type HookObserver interface {
	ObserveHook(kind Kind, service string, d time.Duration, err error)
}

// HookError reports a failed hook call.
type HookError struct {
	Kind    Kind
	Service string
	Err     error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s-%s: %v", e.Kind, e.Service, e.Err)
}

// Unwrap returns the error the hook failed with.
func (e *HookError) Unwrap() error {
	return e.Err
}

// Options configures a Controller.
type Options struct {
	Logger   *slog.Logger
	Observer HookObserver
}

// Controller dispatches hooks of the registered services.
type Controller struct {
	services []*Service
	hooks    Hooks
	logger   *slog.Logger
	observer HookObserver
}

// NewController flattens items and indexes their hooks.
func NewController(opts Options, items ...any) (*Controller, error) {
	services, err := Flatten(items...)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Controller{
		services: services,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
	for _, s := range services {
		if s.ServerListening != nil {
			c.hooks.ServerListening = append(c.hooks.ServerListening, Hook[ServerListeningFunc]{KindServerListening, s.Name, s.ServerListening})
		}
		if s.RedirectRequest != nil {
			c.hooks.RedirectRequest = append(c.hooks.RedirectRequest, Hook[RedirectRequestFunc]{KindRedirectRequest, s.Name, s.RedirectRequest})
		}
		if s.HandleRequest != nil {
			c.hooks.HandleRequest = append(c.hooks.HandleRequest, Hook[HandleRequestFunc]{KindHandleRequest, s.Name, s.HandleRequest})
		}
		if s.HandleError != nil {
			c.hooks.HandleError = append(c.hooks.HandleError, Hook[HandleErrorFunc]{KindHandleError, s.Name, s.HandleError})
		}
		if s.OnResponsePush != nil {
			c.hooks.OnResponsePush = append(c.hooks.OnResponsePush, Hook[OnResponsePushFunc]{KindOnResponsePush, s.Name, s.OnResponsePush})
		}
		if s.InjectResponseHeaders != nil {
			c.hooks.InjectResponseHeaders = append(c.hooks.InjectResponseHeaders, Hook[InjectResponseHeadersFunc]{KindInjectResponseHeaders, s.Name, s.InjectResponseHeaders})
		}
		if s.ResponseReady != nil {
			c.hooks.ResponseReady = append(c.hooks.ResponseReady, Hook[ResponseReadyFunc]{KindResponseReady, s.Name, s.ResponseReady})
		}
		if s.RequestWaiting != nil {
			c.hooks.RequestWaiting = append(c.hooks.RequestWaiting, Hook[RequestWaitingFunc]{KindRequestWaiting, s.Name, s.RequestWaiting})
		}
		if s.ServerStopped != nil {
			c.hooks.ServerStopped = append(c.hooks.ServerStopped, Hook[ServerStoppedFunc]{KindServerStopped, s.Name, s.ServerStopped})
		}
	}
	return c, nil
}

// Services returns the flattened services in registration order.
func (c *Controller) Services() []*Service {
	return c.services
}

// Hooks returns the hook lists. The lists must not be modified.
func (c *Controller) Hooks() Hooks {
	return c.hooks
}

// invoke runs one hook call, recording its duration and recovering panics.
func invoke[R any](c *Controller, kind Kind, name string, timing *domain.Timing, fn func() (R, bool, error)) (r R, ok bool, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			var zero R
			r, ok = zero, false
			err = domain.ErrHookPanic.WithDetails(fmt.Sprint(p))
			c.logger.Error("hook panicked", "hook", kind, "service", name, "panic", p)
		}
		d := time.Since(start)
		if timing != nil {
			timing.Add(string(kind)+"-"+name, d)
		}
		if c.observer != nil {
			c.observer.ObserveHook(kind, name, d, err)
		}
	}()
	return fn()
}

// CallHooks invokes every hook in order and passes each result reported ok
// to collect.
func CallHooks[F, R any](c *Controller, hooks []Hook[F], timing *domain.Timing, call func(F) (R, bool), collect func(Hook[F], R)) {
	for _, h := range hooks {
		r, ok, _ := invoke(c, h.Kind, h.Service, timing, func() (R, bool, error) {
			r, ok := call(h.Fn)
			return r, ok, nil
		})
		if ok && collect != nil {
			collect(h, r)
		}
	}
}

// CallHooksUntil invokes hooks in order until one reports done and returns
// its result.
func CallHooksUntil[F, R any](c *Controller, hooks []Hook[F], timing *domain.Timing, call func(F) (R, bool)) (R, bool) {
	for _, h := range hooks {
		r, ok, _ := invoke(c, h.Kind, h.Service, timing, func() (R, bool, error) {
			r, ok := call(h.Fn)
			return r, ok, nil
		})
		if ok {
			return r, true
		}
	}
	var zero R
	return zero, false
}

// CallAsyncHooksUntil awaits hooks strictly in order. The first hook
// producing a result or an error settles the dispatch; later hooks are not
// started. Errors are returned as *HookError. A done ctx stops the
// dispatch before the next hook starts.
func CallAsyncHooksUntil[F, R any](ctx context.Context, c *Controller, hooks []Hook[F], timing *domain.Timing, call func(context.Context, F) (R, bool, error)) (R, bool, error) {
	var zero R
	for _, h := range hooks {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		r, ok, err := invoke(c, h.Kind, h.Service, timing, func() (R, bool, error) {
			return call(ctx, h.Fn)
		})
		if err != nil {
			return zero, false, &HookError{Kind: h.Kind, Service: h.Service, Err: err}
		}
		if ok {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// NotifyListening runs serverListening hooks.
func (c *Controller) NotifyListening(info ListeningInfo) {
	CallHooks(c, c.hooks.ServerListening, nil, func(fn ServerListeningFunc) (struct{}, bool) {
		fn(info)
		return struct{}{}, false
	}, nil)
}

// Redirect runs redirectRequest hooks and returns the request produced by
// the first hook asking for a redirection, or req itself.
func (c *Controller) Redirect(req *domain.Request, hc *HookContext) *domain.Request {
	rd, ok := CallHooksUntil(c, c.hooks.RedirectRequest, hc.Timing, func(fn RedirectRequestFunc) (*domain.Redirection, bool) {
		rd := fn(req, hc)
		return rd, rd != nil
	})
	if !ok {
		return req
	}
	return req.Redirect(*rd)
}

// Handle runs handleRequest hooks until one returns a response. A nil
// response with a nil error means no service handled the request.
func (c *Controller) Handle(ctx context.Context, req *domain.Request, hc *HookContext) (*domain.Response, error) {
	resp, _, err := CallAsyncHooksUntil(ctx, c, c.hooks.HandleRequest, hc.Timing, func(ctx context.Context, fn HandleRequestFunc) (*domain.Response, bool, error) {
		resp, err := fn(ctx, req, hc)
		return resp, resp != nil, err
	})
	return resp, err
}

// RecoverError offers err to handleError hooks. A nil response with a nil
// error means no hook recovered it.
func (c *Controller) RecoverError(ctx context.Context, cause error, req *domain.Request, hc *HookContext) (*domain.Response, error) {
	resp, _, err := CallAsyncHooksUntil(ctx, c, c.hooks.HandleError, hc.Timing, func(ctx context.Context, fn HandleErrorFunc) (*domain.Response, bool, error) {
		resp, err := fn(ctx, cause, req, hc)
		return resp, resp != nil, err
	})
	return resp, err
}

// PushPrevented reports whether an onResponsePush hook vetoed target.
func (c *Controller) PushPrevented(target PushTarget, req *domain.Request) bool {
	pc := &PushContext{Request: req}
	_, prevented := CallHooksUntil(c, c.hooks.OnResponsePush, nil, func(fn OnResponsePushFunc) (struct{}, bool) {
		fn(target, pc)
		return struct{}{}, pc.Prevented()
	})
	return prevented
}

// InjectHeaders composes the headers returned by injectResponseHeaders
// hooks.
func (c *Controller) InjectHeaders(resp *domain.Response, hc *HookContext) domain.Header {
	out := domain.Header{}
	CallHooks(c, c.hooks.InjectResponseHeaders, hc.Timing, func(fn InjectResponseHeadersFunc) (domain.Header, bool) {
		h := fn(resp, hc)
		return h, len(h) > 0
	}, func(_ Hook[InjectResponseHeadersFunc], h domain.Header) {
		out = domain.ComposeHeaders(out, h)
	})
	return out
}

// NotifyResponseReady runs responseReady hooks.
func (c *Controller) NotifyResponseReady(resp *domain.Response, hc *HookContext) {
	CallHooks(c, c.hooks.ResponseReady, nil, func(fn ResponseReadyFunc) (struct{}, bool) {
		fn(resp, hc)
		return struct{}{}, false
	}, nil)
}

// NotifyRequestWaiting runs requestWaiting hooks.
func (c *Controller) NotifyRequestWaiting(req *domain.Request, elapsed time.Duration) {
	CallHooks(c, c.hooks.RequestWaiting, nil, func(fn RequestWaitingFunc) (struct{}, bool) {
		fn(req, elapsed)
		return struct{}{}, false
	}, nil)
}

// NotifyStopped runs serverStopped hooks.
func (c *Controller) NotifyStopped(info StoppedInfo) {
	CallHooks(c, c.hooks.ServerStopped, nil, func(fn ServerStoppedFunc) (struct{}, bool) {
		fn(info)
		return struct{}{}, false
	}, nil)
}
