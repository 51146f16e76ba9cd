package session

import (
	"context"
	"time"

	"github.com/dmitrymomot/sessions/core/logger"
)

// Store binds a Storage backend to the id generator, id verifier and max age
// used by the sessions it produces. It is safe for concurrent use.
type Store struct {
	storage Storage
	opts    options
}

// NewStore creates a session store on top of storage.
func NewStore(storage Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, ErrNoStorage
	}

	o := options{
		cookieName: "sid",
		maxAge:     24 * time.Hour,
		generate:   TokenGenerator,
		verify:     TokenVerifier,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store{storage: storage, opts: o}, nil
}

// NewStoreFromConfig creates a session store from cfg. Explicit options are
// applied after the config and take precedence.
func NewStoreFromConfig(cfg Config, storage Storage, opts ...Option) (*Store, error) {
	return NewStore(storage, append(configOptions(cfg), opts...)...)
}

// New returns a fresh, unsaved session. An empty id is generated on first save.
func (s *Store) New(id string) *Session {
	return newSession(s, id, nil, true)
}

// Get loads the session stored under id. Ids failing verification, unknown
// ids and expired records all yield a fresh session with an empty id; only
// backend failures are returned as errors.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return s.New(""), nil
	}
	if !s.opts.verify(id) {
		s.opts.logger.DebugContext(ctx, "rejected malformed session id",
			logger.Component("session"),
			logger.Count("id_length", len(id)),
		)
		return s.New(""), nil
	}

	data, err := s.storage.Get(ctx, id)
	if err != nil {
		s.opts.logger.ErrorContext(ctx, "failed to load session",
			logger.Component("session"),
			logger.SessionID(id),
			logger.Error(err),
		)
		return nil, storageError(err)
	}
	if data == nil {
		return s.New(""), nil
	}

	return newSession(s, id, data, false), nil
}

// Reset removes every record from the backing storage.
func (s *Store) Reset(ctx context.Context) error {
	return storageError(s.storage.Reset(ctx))
}

// Close releases the backing storage.
func (s *Store) Close(ctx context.Context) error {
	return storageError(s.storage.Close(ctx))
}

// CleanupExpired removes expired records when the backend supports bulk sweeps.
// Backends without ExpiredCleaner rely on native or lazy expiry and report 0.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	cleaner, ok := s.storage.(ExpiredCleaner)
	if !ok {
		return 0, nil
	}

	start := time.Now()
	n, err := cleaner.DeleteExpired(ctx)
	if err != nil {
		return n, storageError(err)
	}

	s.opts.logger.DebugContext(ctx, "expired sessions removed",
		logger.Component("session"),
		logger.Count("removed", int(n)),
		logger.Elapsed(start),
	)
	return n, nil
}

// Storage returns the backing storage.
func (s *Store) Storage() Storage {
	return s.storage
}

// MaxAge returns the ttl applied when records are persisted.
func (s *Store) MaxAge() time.Duration {
	return s.opts.maxAge
}

// CookieName returns the configured session cookie name.
func (s *Store) CookieName() string {
	return s.opts.cookieName
}

// Verify reports whether id passes the configured verifier.
func (s *Store) Verify(id string) bool {
	return s.opts.verify(id)
}
