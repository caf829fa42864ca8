package domain

import (
	"errors"
	"fmt"
)

// DomainError represents an engine error with a structured error code.
// Codes follow the format DS-<AREA>-<NNNN>; the first digit of the number
// mirrors the HTTP status class the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "DS-PORT-5002")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Protocol Errors (PROTO)
// ============================================================================

var (
	// ErrProtocolUnknown indicates the first byte of a connection matched
	// neither a TLS handshake nor an HTTP request line.
	ErrProtocolUnknown = NewDomainError("DS-PROTO-4000", "unrecognized protocol")

	// ErrProtocolNoData indicates the connection delivered no byte to sniff.
	ErrProtocolNoData = NewDomainError("DS-PROTO-4001", "no data received before protocol detection")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrInvalidProtocol indicates an unsupported protocol option.
	ErrInvalidProtocol = NewDomainError("DS-CONF-5001", "invalid protocol")

	// ErrMissingCertificate indicates https was requested without TLS material.
	ErrMissingCertificate = NewDomainError("DS-CONF-5002", "https requires a certificate and a private key")

	// ErrInvalidCertificate indicates TLS material could not be loaded.
	ErrInvalidCertificate = NewDomainError("DS-CONF-5003", "invalid certificate or private key")

	// ErrInvalidOption indicates an inconsistent option combination.
	ErrInvalidOption = NewDomainError("DS-CONF-5004", "invalid server option")

	// ErrHostnameUnresolved indicates the configured hostname has no address.
	ErrHostnameUnresolved = NewDomainError("DS-CONF-5005", "hostname cannot be resolved")
)

// ============================================================================
// Port Errors (PORT)
// ============================================================================

var (
	// ErrNoFreePort indicates every port of the probed range is taken.
	ErrNoFreePort = NewDomainError("DS-PORT-5002", "no free port in range")

	// ErrPortUnavailable indicates a port failed with an error that is not
	// skipped while probing.
	ErrPortUnavailable = NewDomainError("DS-PORT-5003", "port unavailable")
)

// ============================================================================
// Service Errors (SVC / HOOK / PUSH)
// ============================================================================

var (
	// ErrInvalidService indicates a registered entry is not a service.
	ErrInvalidService = NewDomainError("DS-SVC-5003", "invalid service")

	// ErrHookFailed indicates a hook failure no handleError hook recovered.
	ErrHookFailed = NewDomainError("DS-HOOK-5000", "unhandled hook failure")

	// ErrHookPanic indicates a hook panicked.
	ErrHookPanic = NewDomainError("DS-HOOK-5001", "hook panicked")

	// ErrPushRejected indicates an HTTP/2 push was not performed.
	ErrPushRejected = NewDomainError("DS-PUSH-4001", "push rejected")
)

// ============================================================================
// Request Errors (REQ)
// ============================================================================

var (
	// ErrPayloadConsumed indicates a single-pass body was already read.
	ErrPayloadConsumed = NewDomainError("DS-REQ-4002", "payload already consumed")

	// ErrServerStopping indicates the server refuses work because it stops.
	ErrServerStopping = NewDomainError("DS-REQ-5030", "server is stopping")
)
