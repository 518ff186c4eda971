package cnwlicensing

import (
	"errors"
	"fmt"
)

// Sentinel errors for license key handling.
var (
	ErrKeyFormat = errors.New("malformed license key")
	ErrKeyType   = errors.New("key is not an Ed25519 key")
)

// Sentinel errors for registry operations.
var (
	ErrLicenseNotFound    = errors.New("license not found")
	ErrActivationNotFound = errors.New("activation not found")
	ErrLicenseConflict    = errors.New("license conflict")
	ErrNoSigner           = errors.New("no signing key configured")
	ErrNoVerifier         = errors.New("no verifying key configured")
)

// Sentinel errors for client-side activation.
var (
	ErrActivationInvalid = errors.New("activation failed verification")
	ErrNotActivated      = errors.New("machine is not activated")
	ErrProofInvalid      = errors.New("invalid activation proof format")
)

// ServerError represents an error response from the CNW Licensing Server.
// The server returns errors in the format: {"error": {"code": "...", "message": "..."}}.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// mapServerError converts a ServerError to a well-known sentinel error if possible.
// The returned error wraps both the sentinel error and the original ServerError
// so callers can use errors.Is() for sentinel checks and errors.As() for details.
func mapServerError(se *ServerError) error {
	var sentinel error
	switch se.Code {
	case "LICENSE_NOT_FOUND":
		sentinel = ErrLicenseNotFound
	case "ACTIVATION_NOT_FOUND":
		sentinel = ErrActivationNotFound
	case "CONFLICT":
		sentinel = ErrLicenseConflict
	case "INVALID_KEY":
		sentinel = ErrKeyFormat
	case "ACTIVATION_INVALID":
		sentinel = ErrActivationInvalid
	default:
		return se
	}
	return &mappedError{sentinel: sentinel, server: se}
}

// mappedError wraps a sentinel error with the original ServerError details.
type mappedError struct {
	sentinel error
	server   *ServerError
}

func (e *mappedError) Error() string {
	return e.sentinel.Error()
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) As(target interface{}) bool {
	if t, ok := target.(**ServerError); ok {
		*t = e.server
		return true
	}
	return false
}

func (e *mappedError) Unwrap() error {
	return e.sentinel
}
