package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // opening a library
	PhaseResolve Phase = "resolve" // symbol lookup and binding
	PhaseInvoke  Phase = "invoke"  // calling a bound filter
	PhaseLayout  Phase = "layout"  // descriptor construction and marshalling
	PhaseConfig  Phase = "config"  // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindUnsupported  Kind = "unsupported"
	KindStale        Kind = "stale"
	KindTypeMismatch Kind = "type_mismatch"
	KindClosed       Kind = "closed"
	KindFailedStatus Kind = "failed_status"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindAllocation   Kind = "allocation"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Key    string
	Symbol string
	GoType string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Key != "" {
		b.WriteString(" in ")
		b.WriteString(e.Key)
		if e.Symbol != "" {
			b.WriteByte('#')
			b.WriteString(e.Symbol)
		}
	} else if e.Symbol != "" {
		b.WriteString(" at ")
		b.WriteString(e.Symbol)
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Key sets the registry key
func (b *Builder) Key(key string) *Builder {
	b.err.Key = key
	return b
}

// Symbol sets the symbol name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// LoadFailed creates a library open error
func LoadFailed(key string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindNotFound,
		Key:    key,
		Detail: "open library",
		Cause:  cause,
	}
}

// NotLoaded creates an error for a key that has no registry entry
func NotLoaded(key string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNotFound,
		Key:    key,
		Detail: "library not loaded",
	}
}

// SymbolNotFound creates a missing symbol error
func SymbolNotFound(key, symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNotFound,
		Key:    key,
		Symbol: symbol,
		Detail: "symbol not found",
		Cause:  cause,
	}
}

// TypeMismatch creates an error for a function type the backend cannot bind
func TypeMismatch(symbol, goType, detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindTypeMismatch,
		Symbol: symbol,
		GoType: goType,
		Detail: detail,
	}
}

// Stale creates an error for a filter handle whose library was unloaded or reloaded
func Stale(key, symbol string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindStale,
		Key:    key,
		Symbol: symbol,
		Detail: "library was unloaded or reloaded since the filter was resolved",
	}
}

// Closed creates an error for operations on a closed manager or engine
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// FailedStatus creates an error carrying a non-zero filter status code
func FailedStatus(symbol string, status int32) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindFailedStatus,
		Symbol: symbol,
		Detail: fmt.Sprintf("filter returned status %d", status),
		Value:  status,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, detail string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: detail,
		Value:  value,
	}
}

// AllocationFailed creates a guest allocation failure error
func AllocationFailed(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Status extracts the filter status code from a failed_status error
func Status(err error) (int32, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindFailedStatus {
			s, ok := e.Value.(int32)
			return s, ok
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
