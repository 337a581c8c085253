// Package errors provides the error taxonomy of the activity monitor.
//
// # Error Types
//
// Programmer errors surface synchronously to the caller and are never
// swallowed:
//   - ReentrancyError: the goroutine that owns a monitor called back into it
//     while an operation was in progress (typically from a client callback)
//   - ConcurrentAccessError: another goroutine used a monitor while it was
//     busy
//   - RegistrationError: a nil, duplicate or foreign client or bridge
//   - ArgumentError: an invalid argument (non-UTC time, unregistered tag,
//     filtered sentinel where a real level is required)
//
// ObserverFailure is the only recoverable error: it wraps a panic raised by
// a client callback and is handed to the critical error collector, never to
// the caller.
//
// # Usage
//
//	if err := m.Info("starting"); err != nil {
//	    var re *errors.ReentrancyError
//	    if errors.As(err, &re) { ... }
//	}
//
//	if errors.Is(err, errors.ErrConcurrentAccess) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for errors that are recovered locally.
	SeverityWarning Severity = iota
	// SeverityError is for errors that indicate a misuse of the API.
	SeverityError
	// SeverityCritical is for errors that break an internal invariant.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Guard sentinel errors
var (
	// ErrReentrancy indicates a reentrant call on the owning goroutine.
	ErrReentrancy = New("reentrant call detected")
	// ErrConcurrentAccess indicates a call from a second goroutine.
	ErrConcurrentAccess = New("concurrent access detected")
)

// Registration sentinel errors
var (
	// ErrRegistration is the generic registration failure.
	ErrRegistration = New("registration failed")
	// ErrNilClient indicates a nil client or bridge.
	ErrNilClient = New("client must not be nil")
	// ErrAlreadyBound indicates a bound client already attached to another monitor.
	ErrAlreadyBound = New("client is already bound to another monitor")
)

// Argument sentinel errors
var (
	// ErrInvalidArgument is the generic argument failure.
	ErrInvalidArgument = New("invalid argument")
	// ErrNonUTCTime indicates a timestamp that is not expressed in UTC.
	ErrNonUTCTime = New("timestamp must be UTC")
	// ErrUnregisteredTag indicates a tag set from another registry.
	ErrUnregisteredTag = New("tag set is not registered in this environment")
	// ErrFilteredLevel indicates the filtered-out sentinel where a real level is required.
	ErrFilteredLevel = New("level must not be None")
)

// ErrObserverFailure indicates that a client callback panicked.
var ErrObserverFailure = New("client callback failed")

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Guard Errors
// -----------------------------------------------------------------------------

// ReentrancyError is returned when the goroutine currently inside a monitor
// operation calls the monitor again.
type ReentrancyError struct {
	baseError
	MonitorID   string
	GoroutineID int64
}

// NewReentrancyError creates a new ReentrancyError.
func NewReentrancyError(monitorID string, goroutineID int64) *ReentrancyError {
	return &ReentrancyError{
		baseError: baseError{
			message:  "monitor is already in use by this goroutine",
			cause:    ErrReentrancy,
			severity: SeverityError,
		},
		MonitorID:   monitorID,
		GoroutineID: goroutineID,
	}
}

// Error returns the formatted error message.
func (e *ReentrancyError) Error() string {
	return e.format("reentrancy error", []string{
		fmt.Sprintf("monitor=%s", e.MonitorID),
		fmt.Sprintf("goroutine=%d", e.GoroutineID),
	})
}

// Is checks if this error matches the target.
func (e *ReentrancyError) Is(target error) bool {
	if _, ok := target.(*ReentrancyError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConcurrentAccessError is returned when a goroutine calls a monitor that
// another goroutine is currently using.
type ConcurrentAccessError struct {
	baseError
	MonitorID string
	OwnerID   int64
	CallerID  int64
}

// NewConcurrentAccessError creates a new ConcurrentAccessError.
func NewConcurrentAccessError(monitorID string, ownerID, callerID int64) *ConcurrentAccessError {
	return &ConcurrentAccessError{
		baseError: baseError{
			message:  "monitor is in use by another goroutine",
			cause:    ErrConcurrentAccess,
			severity: SeverityError,
		},
		MonitorID: monitorID,
		OwnerID:   ownerID,
		CallerID:  callerID,
	}
}

// Error returns the formatted error message.
func (e *ConcurrentAccessError) Error() string {
	return e.format("concurrent access error", []string{
		fmt.Sprintf("monitor=%s", e.MonitorID),
		fmt.Sprintf("owner=%d", e.OwnerID),
		fmt.Sprintf("caller=%d", e.CallerID),
	})
}

// Is checks if this error matches the target.
func (e *ConcurrentAccessError) Is(target error) bool {
	if _, ok := target.(*ConcurrentAccessError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Registration Errors
// -----------------------------------------------------------------------------

// RegistrationError represents a client or bridge that cannot be attached.
//
// Example:
//
//	err := errors.NewRegistrationError("bind failed", errors.ErrAlreadyBound).WithClientType("*bridge.Bridge")
type RegistrationError struct {
	baseError
	ClientType string
}

// NewRegistrationError creates a new RegistrationError.
func NewRegistrationError(message string, cause error) *RegistrationError {
	if cause == nil {
		cause = ErrRegistration
	}
	return &RegistrationError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithClientType adds the client's dynamic type to the error context.
func (e *RegistrationError) WithClientType(t string) *RegistrationError {
	e.ClientType = t
	return e
}

// Error returns the formatted error message.
func (e *RegistrationError) Error() string {
	var parts []string
	if e.ClientType != "" {
		parts = append(parts, fmt.Sprintf("client=%s", e.ClientType))
	}
	return e.format("registration error", parts)
}

// Is checks if this error matches the target.
func (e *RegistrationError) Is(target error) bool {
	if _, ok := target.(*RegistrationError); ok {
		return true
	}
	if target == ErrRegistration {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Argument Errors
// -----------------------------------------------------------------------------

// ArgumentError represents an invalid argument passed to a monitor operation.
type ArgumentError struct {
	baseError
	Argument string
	Value    any
}

// NewArgumentError creates a new ArgumentError.
func NewArgumentError(argument string, value any, cause error) *ArgumentError {
	if cause == nil {
		cause = ErrInvalidArgument
	}
	return &ArgumentError{
		baseError: baseError{
			message:  fmt.Sprintf("invalid %s", argument),
			cause:    cause,
			severity: SeverityError,
		},
		Argument: argument,
		Value:    value,
	}
}

// Error returns the formatted error message.
func (e *ArgumentError) Error() string {
	var parts []string
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("argument error", parts)
}

// Is checks if this error matches the target.
func (e *ArgumentError) Is(target error) bool {
	if _, ok := target.(*ArgumentError); ok {
		return true
	}
	if target == ErrInvalidArgument {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Observer Failures
// -----------------------------------------------------------------------------

// ObserverFailure wraps a panic raised by a client callback.
type ObserverFailure struct {
	baseError
	ClientType string
	Callback   string
	Stack      []byte
}

// NewObserverFailure creates a new ObserverFailure.
func NewObserverFailure(clientType, callback string, cause error) *ObserverFailure {
	return &ObserverFailure{
		baseError: baseError{
			message:  fmt.Sprintf("%s panicked", callback),
			cause:    cause,
			severity: SeverityWarning,
		},
		ClientType: clientType,
		Callback:   callback,
	}
}

// WithStack attaches the goroutine stack captured at recovery time.
func (e *ObserverFailure) WithStack(stack []byte) *ObserverFailure {
	e.Stack = stack
	return e
}

// Error returns the formatted error message.
func (e *ObserverFailure) Error() string {
	return e.format("observer failure", []string{fmt.Sprintf("client=%s", e.ClientType)})
}

// Is checks if this error matches the target.
func (e *ObserverFailure) Is(target error) bool {
	if _, ok := target.(*ObserverFailure); ok {
		return true
	}
	if target == ErrObserverFailure {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsProgrammerError reports whether err is one of the errors that signal a
// misuse of the API and must surface to the caller.
func IsProgrammerError(err error) bool {
	if err == nil {
		return false
	}
	var (
		re *ReentrancyError
		ce *ConcurrentAccessError
		rg *RegistrationError
		ae *ArgumentError
	)
	return As(err, &re) || As(err, &ce) || As(err, &rg) || As(err, &ae)
}

// GetSeverity returns the severity of err, SeverityError for unknown errors.
func GetSeverity(err error) Severity {
	var s interface{ Severity() Severity }
	if As(err, &s) {
		return s.Severity()
	}
	return SeverityError
}
