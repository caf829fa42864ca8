package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

// Signals lists the handled signals.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// ReasonFor maps a signal to its stop reason.
func ReasonFor(sig os.Signal) domain.StopReason {
	switch sig {
	case syscall.SIGINT:
		return domain.ReasonSIGINT
	case syscall.SIGTERM:
		return domain.ReasonSIGTERM
	case syscall.SIGHUP:
		return domain.ReasonSIGHUP
	default:
		return domain.ReasonNotSpecified
	}
}

// Hook is a cleanup function run on shutdown.
type Hook func(ctx context.Context, reason domain.StopReason) error

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	hooks   []Hook
	mu      sync.Mutex

	sigCh   chan os.Signal
	trigger chan domain.StopReason
	done    chan struct{}
	reason  domain.StopReason

	closeOnce sync.Once
}

// NewHandler creates a shutdown handler and starts listening for signals.
func NewHandler(timeout time.Duration) *Handler {
	h := &Handler{
		timeout: timeout,
		hooks:   make([]Hook, 0),
		sigCh:   make(chan os.Signal, 1),
		trigger: make(chan domain.StopReason, 1),
		done:    make(chan struct{}),
	}
	signal.Notify(h.sigCh, Signals...)
	return h
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Trigger starts the shutdown without a signal. Only the first trigger
// counts.
func (h *Handler) Trigger(reason domain.StopReason) {
	select {
	case h.trigger <- reason:
	default:
	}
}

// Wait waits for a signal or a trigger and executes hooks.
// It returns the last hook error.
func (h *Handler) Wait() error {
	var reason domain.StopReason
	select {
	case sig := <-h.sigCh:
		reason = ReasonFor(sig)
	case reason = <-h.trigger:
	}
	h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	h.reason = reason
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var lastErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx, reason); err != nil {
			lastErr = err
		}
	}

	close(h.done)
	return lastErr
}

// Reason returns the reason the shutdown started with.
func (h *Handler) Reason() domain.StopReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Close stops listening for signals.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		signal.Stop(h.sigCh)
	})
}

// Notify calls fn with the reason of the first handled signal. The
// returned function stops listening.
func Notify(fn func(domain.StopReason)) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, Signals...)
	go func() {
		select {
		case sig := <-ch:
			fn(ReasonFor(sig))
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
