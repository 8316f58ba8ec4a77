// Package common defines shared sentinel errors used across the sync
// engine layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrEntityDeleted = errors.New("entity is deleted")

	// Sync taxonomy. DataCorruption is never retried; the transient pair
	// (RemoteUnavailable, TransactionAborted) is retried with backoff;
	// PermissionDenied is surfaced and the entity stays dirty.
	ErrDataCorruption     = errors.New("data corruption")
	ErrRemoteUnavailable  = errors.New("remote unavailable")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrPermissionDenied   = errors.New("permission denied")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrTransactionAborted)
}
