// Package verr defines the error taxonomy shared by every backend.
//
// These symbolic kinds are the contract consumers program against,
// independent of which backend raised them. Backends never surface raw
// OS or SDK errors: every operation either succeeds or returns exactly
// one of these kinds after mapping. Context cancellation errors are the
// single exception and pass through unwrapped, matching the convention
// that cancellation belongs to the caller, not the filesystem.
package verr

import "errors"

// ErrorCode is the category of a backend error.
type ErrorCode int

const (
	// ErrInvalidPath indicates the path failed to parse, normalized
	// above the root, or resolved outside a backend's confinement root.
	ErrInvalidPath ErrorCode = iota

	// ErrNotFound indicates the addressed node does not exist.
	ErrNotFound

	// ErrAlreadyExists indicates a node already occupies the target
	// path.
	ErrAlreadyExists

	// ErrNotADirectory indicates a directory operation hit a file.
	ErrNotADirectory

	// ErrIsADirectory indicates a file operation hit a directory.
	ErrIsADirectory

	// ErrNotEmpty indicates a non-recursive remove hit a directory
	// that still has children.
	ErrNotEmpty

	// ErrReadOnly indicates a mutation against a read-only backend or
	// a read-only-flagged node.
	ErrReadOnly

	// ErrPermissionDenied indicates the underlying storage refused the
	// operation for reasons other than the read-only flag.
	ErrPermissionDenied

	// ErrBackendUnavailable indicates the backing store could not be
	// reached or failed internally.
	ErrBackendUnavailable
)

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidPath:
		return "invalid path"
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotADirectory:
		return "not a directory"
	case ErrIsADirectory:
		return "is a directory"
	case ErrNotEmpty:
		return "directory not empty"
	case ErrReadOnly:
		return "read-only"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrBackendUnavailable:
		return "backend unavailable"
	default:
		return "unknown"
	}
}

// Error is a categorized backend error.
//
// Code carries the taxonomy kind; Path is the canonical string form of
// the path the operation addressed, kept for debugging and error
// reporting.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Path != "" {
		return msg + ": " + e.Path
	}
	return msg
}

// New creates an error with the given code, message and path.
func New(code ErrorCode, message, path string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// NewInvalidPath creates an ErrInvalidPath error.
func NewInvalidPath(message, path string) *Error {
	return &Error{Code: ErrInvalidPath, Message: message, Path: path}
}

// NewNotFound creates an ErrNotFound error for path.
func NewNotFound(path string) *Error {
	return &Error{Code: ErrNotFound, Path: path}
}

// NewAlreadyExists creates an ErrAlreadyExists error for path.
func NewAlreadyExists(path string) *Error {
	return &Error{Code: ErrAlreadyExists, Path: path}
}

// NewNotADirectory creates an ErrNotADirectory error for path.
func NewNotADirectory(path string) *Error {
	return &Error{Code: ErrNotADirectory, Path: path}
}

// NewIsADirectory creates an ErrIsADirectory error for path.
func NewIsADirectory(path string) *Error {
	return &Error{Code: ErrIsADirectory, Path: path}
}

// NewNotEmpty creates an ErrNotEmpty error for path.
func NewNotEmpty(path string) *Error {
	return &Error{Code: ErrNotEmpty, Path: path}
}

// NewReadOnly creates an ErrReadOnly error for path.
func NewReadOnly(path string) *Error {
	return &Error{Code: ErrReadOnly, Path: path}
}

// NewPermissionDenied creates an ErrPermissionDenied error for path.
func NewPermissionDenied(path string) *Error {
	return &Error{Code: ErrPermissionDenied, Path: path}
}

// NewUnavailable creates an ErrBackendUnavailable error.
func NewUnavailable(message, path string) *Error {
	return &Error{Code: ErrBackendUnavailable, Message: message, Path: path}
}

// CodeOf extracts the taxonomy code from err. The second return is
// false when err is nil or not a taxonomy error (e.g. a context
// cancellation passed through).
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
