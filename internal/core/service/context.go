package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

// Pusher performs HTTP/2 pushes for the request being handled.
type Pusher interface {
	Push(target PushTarget) error
}

// HookContext is the per-request capability object handed to hooks.
type HookContext struct {
	// Timing collects hook durations. It may be nil.
	Timing *domain.Timing
	Logger *slog.Logger

	ctx    context.Context
	pusher Pusher
}

// NewHookContext returns a hook context. pusher may be nil when the
// request cannot push.
func NewHookContext(ctx context.Context, timing *domain.Timing, logger *slog.Logger, pusher Pusher) *HookContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HookContext{Timing: timing, Logger: logger, ctx: ctx, pusher: pusher}
}

// Context returns the request context.
func (c *HookContext) Context() context.Context {
	return c.ctx
}

// PushResponse asks the server to push target alongside the current
// response. A rejected push is reported as ErrPushRejected and never
// affects the current response.
func (c *HookContext) PushResponse(target PushTarget) error {
	if c.pusher == nil {
		return domain.ErrPushRejected.WithDetails("push is not available for this request")
	}
	return c.pusher.Push(target)
}

// PushContext is handed to onResponsePush hooks.
type PushContext struct {
	// Request is the request the push originates from.
	Request *domain.Request

	prevented bool
}

// Prevent vetoes the push.
func (c *PushContext) Prevent() {
	c.prevented = true
}

// Prevented reports whether a hook vetoed the push.
func (c *PushContext) Prevented() bool {
	return c.prevented
}
