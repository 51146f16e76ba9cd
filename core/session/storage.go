package session

import (
	"context"
	"time"
)

// Storage is the persistence port a backend must implement.
// Implementations must be safe for concurrent use by many sessions.
//
// Get returns (nil, nil) when the record is absent or expired; expired
// records should be evicted on that lookup. Set replaces any existing record
// and resets its expiry to now+ttl; a non-positive ttl stores an already
// expired record. Remove of an absent id is not an error. Close is idempotent.
//
// Failures are returned wrapped with ErrStorage.
type Storage interface {
	Get(ctx context.Context, id string) (Data, error)
	Set(ctx context.Context, id string, data Data, ttl time.Duration) error
	Remove(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExpiredCleaner is implemented by backends able to sweep expired records
// in bulk. Backends with native expiry (Redis) don't need it.
type ExpiredCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Record is the backend-side pair of a data snapshot and its absolute expiry.
// File based backends persist it as JSON.
type Record struct {
	Data      Data      `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRecord builds a record expiring ttl from now.
func NewRecord(data Data, ttl time.Duration) Record {
	return Record{Data: data, ExpiresAt: time.Now().Add(ttl)}
}

// IsExpired reports whether the record expiry is at or before now.
// A record written with a zero ttl is expired immediately.
func (r Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
