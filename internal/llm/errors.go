package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an LLM call failure. The kind decides whether the
// retry helper tries again and how workers finalize the job.
type ErrorKind string

const (
	// KindRateLimited covers provider HTTP 429 responses. Retryable.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTimeout covers client-side deadlines and provider timeouts.
	// Retryable.
	KindTimeout ErrorKind = "timeout"

	// KindTransient covers provider 5xx responses and connection-level
	// failures. Retryable.
	KindTransient ErrorKind = "transient"

	// KindPermanent covers provider 4xx responses other than 429 (bad
	// request, auth failure). Not retryable.
	KindPermanent ErrorKind = "permanent"

	// KindValidation covers structurally invalid provider responses:
	// a missing or ill-typed required field in the tool call arguments.
	// Not retryable; retrying the same prompt yields the same shape.
	KindValidation ErrorKind = "validation"
)

// Error is a classified LLM failure.
type Error struct {
	Kind ErrorKind
	Op   string // operation name, e.g. "process_text"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("llm: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry helper should try the call again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindTransient:
		return true
	}
	return false
}

// newError wraps err with a kind and operation name.
func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// validationErrorf builds a non-retryable validation error.
func validationErrorf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsRetryable reports whether err is a retryable LLM error. Unclassified
// errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Retryable()
	}
	return false
}

// KindOf extracts the error kind, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return ""
}
