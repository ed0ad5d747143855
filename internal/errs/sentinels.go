// Package errs contains sentinel errors and typed failures used across layers
// for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across client/session layers.
var (
	// ErrNotAuthenticated indicates the backend rejected the session (code 40100).
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden indicates the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., account taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates client-side parameter validation failure.
	ErrInvalidInput = errors.New("invalid input")
)

// Result codes of the usercenter backend envelope.
const (
	CodeSuccess     = 0
	CodeParamsError = 40000
	CodeNullData    = 40001
	CodeNotLogin    = 40100
	CodeNoAuth      = 40101
	CodeLoginError  = 40102
	CodeOperation   = 40103
	CodeForbidden   = 40301
	CodeNotFound    = 40400
	CodeSystemError = 50000
)

// ServerError is a structured failure decoded from the backend envelope
// (code != 0) or synthesized from a non-2xx status without an envelope.
type ServerError struct {
	Status      int    // HTTP status of the response
	Code        int    // envelope result code
	Message     string // short envelope message
	Description string // detailed envelope description
}

// Error prefers description over message over a generic fallback.
func (e *ServerError) Error() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("server error (code %d, status %d)", e.Code, e.Status)
	}
}

// Unwrap maps backend result codes onto sentinels so errors.Is works.
func (e *ServerError) Unwrap() error {
	switch e.Code {
	case CodeNotLogin:
		return ErrNotAuthenticated
	case CodeNoAuth, CodeForbidden:
		return ErrForbidden
	case CodeNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Retryable reports whether the failure is a transient server-side one.
func (e *ServerError) Retryable() bool { return e.Status >= 500 }

// NetworkError is a transport-level failure: no parsable response was
// received (connection refused, timeout, malformed body).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network: %s: %v", e.URL, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// AsServerError unwraps err into *ServerError if one is in the chain.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	ok := errors.As(err, &se)
	return se, ok
}

// IsNotAuthenticated reports whether err carries the explicit
// not-authenticated signal that must invalidate the local session.
func IsNotAuthenticated(err error) bool { return errors.Is(err, ErrNotAuthenticated) }
