package operation

import "context"

// Outcome classifies how an awaited call settled.
type Outcome int

const (
	// OutcomeOK means the call returned without error.
	OutcomeOK Outcome = iota
	// OutcomeCancelled means the call failed while its own operation was
	// aborted. Callers unwind silently.
	OutcomeCancelled
	// OutcomeFailed means the call failed for any other reason.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the tri-state result of Await.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Err     error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Outcome == OutcomeOK }

// Cancelled reports whether the call was cancelled by its own operation.
func (r Result[T]) Cancelled() bool { return r.Outcome == OutcomeCancelled }

// Await runs fn with the operation context and classifies the result.
//
// A failure is reported as OutcomeCancelled only when op itself was aborted,
// whatever error value fn returned. A failure unrelated to op's state is
// OutcomeFailed even when it wraps context.Canceled.
func Await[T any](op *Operation, fn func(ctx context.Context) (T, error)) Result[T] {
	if err := op.Err(); err != nil {
		var zero T
		if op.Cancelled() {
			return Result[T]{Outcome: OutcomeCancelled, Value: zero, Err: err}
		}
		return Result[T]{Outcome: OutcomeFailed, Value: zero, Err: err}
	}

	v, err := fn(op.Context())
	if err == nil {
		return Result[T]{Outcome: OutcomeOK, Value: v}
	}
	if op.Cancelled() {
		return Result[T]{Outcome: OutcomeCancelled, Value: v, Err: err}
	}
	return Result[T]{Outcome: OutcomeFailed, Value: v, Err: err}
}
