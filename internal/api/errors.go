package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors produced by the lifecycle core.
type ErrorKind string

const (
	// KindInvalidSpec marks malformed input. Never retried.
	KindInvalidSpec ErrorKind = "InvalidSpec"
	// KindTransient marks a control-plane hiccup that is worth retrying.
	KindTransient ErrorKind = "Transient"
	// KindPermanent marks a control-plane rejection that will not go away.
	KindPermanent ErrorKind = "Permanent"
	// KindReadinessTimeout marks a workload that did not become ready in time.
	// The workload is left running.
	KindReadinessTimeout ErrorKind = "ReadinessTimeout"
	// KindWorkloadFailed marks a compute unit that reported a failure exit.
	KindWorkloadFailed ErrorKind = "WorkloadFailed"
	// KindNotReady marks a request for an endpoint that does not exist yet.
	KindNotReady ErrorKind = "NotReady"
	// KindNotFound marks an unknown server id or a missing cluster object.
	KindNotFound ErrorKind = "NotFound"
)

// Error is the single error type of the lifecycle core. The Kind decides how
// callers react; Err keeps the underlying cause for errors.Is/As.
type Error struct {
	Kind     ErrorKind
	ServerID string
	Message  string
	Err      error
}

// Error implements the error interface.
//
// Returns:
//   - string: "<kind>: <message>[ (server <id>)][: <cause>]"
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.ServerID != "" {
		msg += fmt.Sprintf(" (server %s)", e.ServerID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithServer returns a copy of e annotated with a server id.
func (e *Error) WithServer(id string) *Error {
	cp := *e
	cp.ServerID = id
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
//
// Example:
//
//	switch api.KindOf(err) {
//	case api.KindTransient:
//	    // retry
//	case api.KindInvalidSpec:
//	    // report to caller
//	}
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// NewInvalidSpecError reports malformed caller input.
func NewInvalidSpecError(format string, args ...interface{}) *Error {
	return NewError(KindInvalidSpec, nil, format, args...)
}

// NewTransientError wraps a retryable control-plane error.
func NewTransientError(err error, format string, args ...interface{}) *Error {
	return NewError(KindTransient, err, format, args...)
}

// NewPermanentError wraps a non-retryable control-plane error.
func NewPermanentError(err error, format string, args ...interface{}) *Error {
	return NewError(KindPermanent, err, format, args...)
}

// NewReadinessTimeoutError reports a server that was not ready within its budget.
func NewReadinessTimeoutError(id string, state State, timeout fmt.Stringer) *Error {
	return &Error{
		Kind:     KindReadinessTimeout,
		ServerID: id,
		Message:  fmt.Sprintf("not ready after %s (state %s)", timeout, state),
	}
}

// NewWorkloadFailedError reports a compute unit that exited with a failure.
func NewWorkloadFailedError(id, reason string) *Error {
	return &Error{Kind: KindWorkloadFailed, ServerID: id, Message: reason}
}

// NewNotReadyError reports an endpoint request made before the server is ready.
func NewNotReadyError(id string, state State) *Error {
	return &Error{
		Kind:     KindNotReady,
		ServerID: id,
		Message:  fmt.Sprintf("endpoint not available in state %s", state),
	}
}

// NewNotFoundError reports an unknown resource.
//
// Args:
//   - resourceType: category of the resource ("server", "job", "service", "preset")
//   - resourceName: identifier of the resource
//
// Example:
//
//	return api.NewNotFoundError("server", id)
func NewNotFoundError(resourceType, resourceName string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", resourceType, resourceName),
	}
}

// NewServerNotFoundError reports an id unknown to the registry.
func NewServerNotFoundError(id string) *Error {
	return NewNotFoundError("server", id).WithServer(id)
}

// IsInvalidSpec checks whether err is, or wraps, an InvalidSpec error.
func IsInvalidSpec(err error) bool { return KindOf(err) == KindInvalidSpec }

// IsTransient checks whether err is, or wraps, a Transient error.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsPermanent checks whether err is, or wraps, a Permanent error.
func IsPermanent(err error) bool { return KindOf(err) == KindPermanent }

// IsReadinessTimeout checks whether err is, or wraps, a ReadinessTimeout error.
func IsReadinessTimeout(err error) bool { return KindOf(err) == KindReadinessTimeout }

// IsWorkloadFailed checks whether err is, or wraps, a WorkloadFailed error.
func IsWorkloadFailed(err error) bool { return KindOf(err) == KindWorkloadFailed }

// IsNotReady checks whether err is, or wraps, a NotReady error.
func IsNotReady(err error) bool { return KindOf(err) == KindNotReady }

// IsNotFound checks whether err is, or wraps, a NotFound error.
//
// Example:
//
//	handle, err := manager.Status(ctx, id)
//	if api.IsNotFound(err) {
//	    return mcp.NewToolResultError(fmt.Sprintf("no server %s", id)), nil
//	}
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
