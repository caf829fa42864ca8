// Package operation provides the tree-structured cancellation primitive
// used to coordinate server start-up, shutdown and per-request lifecycles.
//
// Every long-lived activity (server start, a connection, a request, a
// pushed sub-request) owns an Operation. Aborting a parent aborts every
// live child exactly once; aborting a child never affects its siblings or
// its parent. Ending an operation runs its end callbacks exactly once, in
// reverse registration order.
package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCancelled is matched by every CancelledError through errors.Is.
var ErrCancelled = errors.New("operation: cancelled")

// ErrEnded is returned by Err once the operation has ended normally.
var ErrEnded = errors.New("operation: already ended")

// CancelledError reports that an operation was aborted.
type CancelledError struct {
	// Reason is the value given to Abort. It may be nil.
	Reason error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Reason == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled.Error(), e.Reason)
}

// Is makes errors.Is(err, ErrCancelled) true.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Unwrap returns the abort reason.
func (e *CancelledError) Unwrap() error {
	return e.Reason
}

// AbortSource is an external trigger able to request cancellation.
// It receives the abort function to call later and returns a function
// releasing whatever it subscribed to.
type AbortSource func(abort func(reason error)) (remove func())

type callback[F any] struct {
	id int
	fn F
}

// Operation is a node of the cancellation tree.
type Operation struct {
	mu sync.Mutex

	parent   *Operation
	children map[*Operation]struct{}

	ctx    context.Context
	cancel context.CancelCauseFunc

	cancelled bool
	ended     bool
	reason    error

	nextID         int
	abortCallbacks []callback[func(error)]
	endCallbacks   []callback[func()]
	sources        []callback[func()]
}

// Start creates an operation. A nil parent creates a root.
func Start(parent *Operation) *Operation {
	op := &Operation{children: make(map[*Operation]struct{})}

	// Aborts reach children through the tree, so ending a parent leaves
	// its children running.
	op.ctx, op.cancel = context.WithCancelCause(context.Background())

	if parent == nil {
		return op
	}

	parent.mu.Lock()
	switch {
	case parent.cancelled:
		reason := parent.reason
		parent.mu.Unlock()
		op.parent = parent
		op.Abort(reason)
		return op
	case parent.ended:
		parent.mu.Unlock()
		// Children of an ended operation start detached.
		return op
	}
	parent.children[op] = struct{}{}
	op.parent = parent
	parent.mu.Unlock()

	return op
}

// FromContext creates a root operation aborted when ctx is done.
func FromContext(ctx context.Context) *Operation {
	op := Start(nil)
	op.AddAbortSource(ContextSource(ctx))
	return op
}

// ContextSource is an AbortSource firing when ctx is done.
func ContextSource(ctx context.Context) AbortSource {
	return func(abort func(error)) func() {
		stop := context.AfterFunc(ctx, func() {
			abort(context.Cause(ctx))
		})
		return func() { stop() }
	}
}

// TimeoutSource is an AbortSource firing after d.
func TimeoutSource(d time.Duration) AbortSource {
	return func(abort func(error)) func() {
		t := time.AfterFunc(d, func() {
			abort(context.DeadlineExceeded)
		})
		return func() { t.Stop() }
	}
}

// Context returns a context cancelled when the operation is aborted or ended.
func (o *Operation) Context() context.Context {
	return o.ctx
}

// Done is a shorthand for Context().Done().
func (o *Operation) Done() <-chan struct{} {
	return o.ctx.Done()
}

// Cancelled reports whether the operation was aborted.
func (o *Operation) Cancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// Ended reports whether End was called.
func (o *Operation) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended
}

// Reason returns the abort reason, or nil.
func (o *Operation) Reason() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reason
}

// Err returns a *CancelledError once aborted, ErrEnded once ended, nil otherwise.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelled {
		return &CancelledError{Reason: o.reason}
	}
	if o.ended {
		return ErrEnded
	}
	return nil
}

// AddAbortSource subscribes src. The returned function unsubscribes it.
// Sources added to an ended or cancelled operation are ignored.
func (o *Operation) AddAbortSource(src AbortSource) (remove func()) {
	o.mu.Lock()
	if o.ended || o.cancelled {
		o.mu.Unlock()
		return func() {}
	}
	o.nextID++
	id := o.nextID
	o.mu.Unlock()

	release := src(o.Abort)

	o.mu.Lock()
	if o.ended || o.cancelled {
		o.mu.Unlock()
		release()
		return func() {}
	}
	o.sources = append(o.sources, callback[func()]{id: id, fn: release})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		fn, ok := takeCallback(&o.sources, id)
		o.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// AddAbortCallback registers fn to run once if the operation is aborted.
// When the operation is already aborted fn runs immediately.
func (o *Operation) AddAbortCallback(fn func(reason error)) (remove func()) {
	o.mu.Lock()
	if o.cancelled {
		reason := o.reason
		o.mu.Unlock()
		fn(reason)
		return func() {}
	}
	if o.ended {
		o.mu.Unlock()
		return func() {}
	}
	o.nextID++
	id := o.nextID
	o.abortCallbacks = append(o.abortCallbacks, callback[func(error)]{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		takeCallback(&o.abortCallbacks, id)
		o.mu.Unlock()
	}
}

// AddEndCallback registers fn to run once when End is called.
func (o *Operation) AddEndCallback(fn func()) (remove func()) {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return func() {}
	}
	o.nextID++
	id := o.nextID
	o.endCallbacks = append(o.endCallbacks, callback[func()]{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		takeCallback(&o.endCallbacks, id)
		o.mu.Unlock()
	}
}

// Abort cancels the operation and its live children. Only the first call
// has an effect.
func (o *Operation) Abort(reason error) {
	o.mu.Lock()
	if o.cancelled || o.ended {
		o.mu.Unlock()
		return
	}
	o.cancelled = true
	o.reason = reason

	callbacks := o.abortCallbacks
	o.abortCallbacks = nil
	sources := o.sources
	o.sources = nil
	children := make([]*Operation, 0, len(o.children))
	for child := range o.children {
		children = append(children, child)
	}
	o.mu.Unlock()

	o.cancel(&CancelledError{Reason: reason})

	for _, child := range children {
		child.Abort(reason)
	}
	for i := len(sources) - 1; i >= 0; i-- {
		sources[i].fn()
	}
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i].fn(reason)
	}
}

// End terminates the operation: abort sources are released, pending abort
// callbacks are dropped and end callbacks run in reverse registration order.
// End is idempotent.
func (o *Operation) End() {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	o.ended = true

	callbacks := o.endCallbacks
	o.endCallbacks = nil
	o.abortCallbacks = nil
	sources := o.sources
	o.sources = nil
	parent := o.parent
	o.parent = nil
	o.mu.Unlock()

	for i := len(sources) - 1; i >= 0; i-- {
		sources[i].fn()
	}
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i].fn()
	}

	if parent != nil {
		parent.mu.Lock()
		delete(parent.children, o)
		parent.mu.Unlock()
	}

	o.cancel(ErrEnded)
}

// WithSignal runs fn with a child operation that is ended when fn returns.
func (o *Operation) WithSignal(fn func(child *Operation) error) error {
	child := Start(o)
	defer child.End()
	return fn(child)
}

// AddTimeout aborts the operation with context.DeadlineExceeded after d.
func (o *Operation) AddTimeout(d time.Duration) (remove func()) {
	return o.AddAbortSource(TimeoutSource(d))
}

func takeCallback[F any](list *[]callback[F], id int) (F, bool) {
	for i, cb := range *list {
		if cb.id == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return cb.fn, true
		}
	}
	var zero F
	return zero, false
}
