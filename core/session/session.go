package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/sessions/core/logger"
)

// Session is a concurrency-safe handle to one client's key/value data.
// A single *Session may be shared by goroutines serving the same client.
//
// Data and id are guarded by mu. Status is atomic so it can be read without
// the lock, but every status transition is made while holding the write lock,
// before the data change it reports.
type Session struct {
	store *Store
	fresh bool

	mu   sync.RWMutex
	id   string
	data Data

	status atomic.Uint32
	// gen counts applied mutations; saved is the generation last persisted.
	gen   atomic.Uint64
	saved atomic.Uint64

	// persist serializes storage I/O of Save, Renew and Destroy.
	persist chan struct{}
}

func newSession(store *Store, id string, data Data, fresh bool) *Session {
	if data == nil {
		data = make(Data)
	}
	return &Session{
		store:   store,
		fresh:   fresh,
		id:      id,
		data:    data,
		persist: make(chan struct{}, 1),
	}
}

// ID returns the session id. It is empty for fresh sessions until the first save.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// IsFresh reports whether the session was created rather than loaded from storage.
func (s *Session) IsFresh() bool {
	return s.fresh
}

// Get returns a copy of the raw value stored under key.
func (s *Session) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Set encodes value and stores it under key, returning the replaced raw value.
// It is a no-op on a purged session. Encoding failures return ErrSerialization
// and leave the session untouched.
func (s *Session) Set(key string, value any) (json.RawMessage, bool, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markChanged() {
		return nil, false, nil
	}
	prev, ok := s.data.Set(key, raw)
	return prev, ok, nil
}

// Remove deletes key and returns the removed raw value. No-op on a purged session.
func (s *Session) Remove(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markChanged() {
		return nil, false
	}
	return s.data.Remove(key)
}

// Clear removes all values. No-op on a purged session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markChanged() {
		s.data.Clear()
	}
}

// Data returns a snapshot of all values.
func (s *Session) Data() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Purge clears all data and marks the session purged. It does no storage I/O:
// the record goes away on Destroy or backend expiry.
func (s *Session) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status() == Purged {
		return
	}
	s.status.Store(uint32(Purged))
	s.data.Clear()
	s.gen.Add(1)
}

// Save persists the data under the session id if it changed since the last
// save. Concurrent or repeated calls for the same state issue one write.
// An empty id is generated first. Saving a purged session is a no-op.
// On failure the in-memory data is kept and Save may be retried.
func (s *Session) Save(ctx context.Context) error {
	if s.Status() == Purged {
		return nil
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	if s.Status() == Purged {
		s.mu.Unlock()
		return nil
	}
	gen, prev := s.gen.Load(), s.saved.Load()
	if gen == prev || !s.saved.CompareAndSwap(prev, gen) {
		s.mu.Unlock()
		return nil
	}
	if s.id == "" {
		s.id = s.store.opts.generate()
	}
	id, snapshot := s.id, s.data.Clone()
	s.mu.Unlock()

	if err := s.store.storage.Set(ctx, id, snapshot, s.store.opts.maxAge); err != nil {
		s.saved.CompareAndSwap(gen, prev)
		s.logFailure(ctx, "save", id, err)
		return storageError(err)
	}

	s.store.opts.logger.DebugContext(ctx, "session saved",
		logger.Component("session"),
		logger.SessionID(id),
		logger.TTL(s.store.opts.maxAge),
	)
	return nil
}

// Renew rotates the session identity: a new id is generated, data is
// cleared, the old record is removed and an empty record is stored under the
// new id. Renewing a renewed or purged session is a no-op.
//
// Renew does not roll back. If removing the old record fails, the error
// wraps ErrStorage. If storing the new record fails, the error wraps
// ErrRenewIncomplete. In both cases the session keeps the new id with status
// Renewed and stays dirty, so a later Save persists it.
func (s *Session) Renew(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	switch s.Status() {
	case Renewed, Purged:
		s.mu.Unlock()
		return nil
	}
	oldID := s.id
	s.status.Store(uint32(Renewed))
	s.id = s.store.opts.generate()
	s.data.Clear()
	gen := s.gen.Add(1)
	newID := s.id
	s.mu.Unlock()

	if oldID != "" {
		if err := s.store.storage.Remove(ctx, oldID); err != nil {
			s.logFailure(ctx, "renew", oldID, err)
			return storageError(err)
		}
	}

	if s.Status() == Purged {
		return ErrConcurrency
	}

	if err := s.store.storage.Set(ctx, newID, make(Data), s.store.opts.maxAge); err != nil {
		s.logFailure(ctx, "renew", newID, err)
		return errors.Join(ErrRenewIncomplete, storageError(err))
	}
	s.saved.Store(gen)
	return nil
}

// Destroy marks the session purged and removes its record. It is idempotent;
// once destroyed the session ignores mutations and reads return nothing.
func (s *Session) Destroy(ctx context.Context) error {
	s.Purge()

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	id := s.ID()
	if id == "" {
		return nil
	}
	if err := s.store.storage.Remove(ctx, id); err != nil {
		s.logFailure(ctx, "destroy", id, err)
		return storageError(err)
	}
	return nil
}

// markChanged applies the status transition of a mutating call and bumps
// the generation. It reports false when the mutation must be dropped.
// The caller must hold the write lock.
func (s *Session) markChanged() bool {
	switch s.Status() {
	case Purged:
		return false
	case Unchanged:
		s.status.Store(uint32(Changed))
	}
	s.gen.Add(1)
	return true
}

// acquire takes the persist slot or fails with ErrConcurrency when ctx ends first.
func (s *Session) acquire(ctx context.Context) (func(), error) {
	release := func() { <-s.persist }
	select {
	case s.persist <- struct{}{}:
		return release, nil
	default:
	}
	select {
	case s.persist <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrConcurrency, ctx.Err())
	}
}

func (s *Session) logFailure(ctx context.Context, action, id string, err error) {
	s.store.opts.logger.ErrorContext(ctx, "session storage operation failed",
		logger.Component("session"),
		logger.Action(action),
		logger.Group("session",
			logger.SessionID(id),
			logger.SessionStatus(s.Status().String()),
		),
		logger.Error(err),
	)
}
