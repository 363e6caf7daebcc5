// Package errs defines the error taxonomy used across the runtime: a
// small set of kinds (configuration, connection, protocol, capacity,
// internal) and a concrete code within each kind, so callers can branch
// on errs.Is(err, errs.NotConnected) without string matching.
package errs

import "fmt"

// Kind groups related error Codes.
type Kind uint8

const (
	KindConfiguration Kind = iota
	KindConnection
	KindProtocol
	KindCapacity
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindCapacity:
		return "capacity"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Code is a specific, stable error identity within a Kind.
type Code struct {
	kind Kind
	name string
}

func (c Code) Kind() Kind    { return c.kind }
func (c Code) String() string { return c.name }

// Error wraps a Code with a message and an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so
// errors.Is(err, errs.New(errs.NotConnected, "")) matches a wrapped
// *Error. To test against a bare Code, use the package-level Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error for the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error for the given code, chaining cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Configuration-kind codes.
var (
	InvalidAddress = Code{KindConfiguration, "InvalidAddress"}
	DuplicateTag   = Code{KindConfiguration, "DuplicateTag"}
	UnknownTag     = Code{KindConfiguration, "UnknownTag"}
	NotWritable    = Code{KindConfiguration, "NotWritable"}
	InvalidPolicy  = Code{KindConfiguration, "InvalidPolicy"}
)

// Connection-kind codes.
var (
	NotConnected        = Code{KindConnection, "NotConnected"}
	Timeout              = Code{KindConnection, "Timeout"}
	AuthFailed           = Code{KindConnection, "AuthFailed"}
	EndpointUnreachable  = Code{KindConnection, "EndpointUnreachable"}
)

// Protocol-kind codes.
var (
	TypeMismatch     = Code{KindProtocol, "TypeMismatch"}
	UnsupportedType  = Code{KindProtocol, "UnsupportedType"}
	ServerStatusBad  = Code{KindProtocol, "ServerStatusBad"}
)

// Capacity-kind codes.
var (
	Busy     = Code{KindCapacity, "Busy"}
	Overload = Code{KindCapacity, "Overload"}
)

// Internal-kind codes.
var (
	Invariant = Code{KindInternal, "Invariant"}
)

// Is reports whether err carries the given Code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
