package session

import "errors"

var (
	// ErrStorage is returned when a backing storage operation fails.
	// The underlying cause is joined with it, so context.Canceled and
	// context.DeadlineExceeded remain detectable with errors.Is.
	ErrStorage = errors.New("session storage failure")
	// ErrSerialization is returned when a value cannot be encoded or decoded.
	ErrSerialization = errors.New("session serialization failure")
	// ErrConcurrency is returned when a lifecycle operation loses a race with a
	// conflicting operation on the same session handle.
	ErrConcurrency = errors.New("session concurrency conflict")
	// ErrInvalidID is returned by a backend that cannot safely address the given id.
	ErrInvalidID = errors.New("invalid session id")
	// ErrRenewIncomplete is returned when renew removed the old record
	// but failed to persist the new one.
	ErrRenewIncomplete = errors.New("session renew incomplete")
	// ErrNoStorage is returned when a store is constructed without storage.
	ErrNoStorage = errors.New("session storage is not configured")
)

// storageError wraps a backend failure with ErrStorage unless it is already wrapped.
func storageError(err error) error {
	if err == nil || errors.Is(err, ErrStorage) {
		return err
	}
	return errors.Join(ErrStorage, err)
}
