package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Handlers map them to HTTP
// status codes at the boundary.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTimeout    = errors.New("timeout")
	ErrBadRequest = errors.New("bad request")
	ErrGone       = errors.New("gone")
)

// DenyReason categorizes an access denial so clients can react
// (prompt for a passcode, prompt for login) without parsing messages
type DenyReason string

const (
	DenyInactive   DenyReason = "inactive"
	DenyPasscode   DenyReason = "passcode"
	DenyRegistered DenyReason = "registered"
	DenyForbidden  DenyReason = "forbidden"
)

// AccessDeniedError is returned by the access resolver when a document
// may not be read by the caller
type AccessDeniedError struct {
	DocumentSlug string
	Reason       DenyReason
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for document %s: %s", e.DocumentSlug, e.Reason)
}

// BusyError signals that all processing slots are taken
type BusyError struct {
	RetryAfter int // seconds
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("all processing slots busy, retry after %ds", e.RetryAfter)
}

// ProviderError is a normalized upstream failure from an embedding or
// chat provider
type ProviderError struct {
	Status     int
	RetryAfter int // seconds, from Retry-After when present
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// IsRetriable reports whether an error is worth retrying: rate limits,
// timeouts, and upstream 5xx responses. Auth and validation failures
// are not.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Status == 429 || provErr.Status >= 500 || provErr.Status == 0
	}
	return false
}
