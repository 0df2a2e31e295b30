package models

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrUnreachable classifies transient connectivity failures: the
	// remote store could not be reached at all. A push batch aborts
	// wholesale on this error and retries on a later cycle.
	ErrUnreachable = errors.New("remote unreachable")

	ErrRecordNotFound = errors.New("record not found")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// APIError is a rejection from the remote store: the server was reached
// and refused the operation (auth, validation, quota). The affected
// record is marked FAILED and the batch continues.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// SyncError wraps a failure with its position in the cycle.
type SyncError struct {
	Phase   string // "push" or "pull"
	Kind    Kind
	OwnerID string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s %s: owner %s: %v", e.Phase, e.Kind, e.OwnerID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a connectivity-class failure that
// should abort the batch without marking records.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsRejected reports whether err is a server refusal that should mark
// the record FAILED and let the batch continue.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
