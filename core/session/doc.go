// Package session provides server-side session state: a per-client key/value
// record identified by an opaque id, persisted through a pluggable Storage
// backend with expiration, and safely mutated by concurrent request handlers.
//
// # Core Components
//
// The package provides four main types:
//
//   - Data: string-keyed map of JSON-encoded values, the unit of stored content
//   - Storage: interface a backend implements (Get, Set, Remove, Reset, Close)
//   - Store: binds a Storage to the id generator, id verifier and max age
//   - Session: concurrency-safe handle with lifecycle status
//
// Two backends live in this package: MemoryStorage and FileStorage. Redis,
// PostgreSQL, MongoDB and BBolt backends live under integration/sessionstore.
//
// # Basic Usage
//
//	store, err := session.NewStore(session.NewMemoryStorage(),
//		session.WithMaxAge(24*time.Hour),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		var id string
//		if c, err := r.Cookie(store.CookieName()); err == nil {
//			id = c.Value
//		}
//
//		sess, err := store.Get(r.Context(), id)
//		if err != nil {
//			http.Error(w, "Session error", http.StatusInternalServerError)
//			return
//		}
//
//		visits, _ := session.Get[int](sess, "visits")
//		if _, _, err := session.Set(sess, "visits", visits+1); err != nil {
//			log.Printf("Failed to update session: %v", err)
//		}
//
//		if err := sess.Save(r.Context()); err != nil {
//			log.Printf("Failed to save session: %v", err)
//		}
//	}
//
// # Session States and Lifecycle
//
// A session is in one of four states:
//
//   - Unchanged: created or loaded, nothing mutated yet
//   - Changed: at least one Set, Remove or Clear was applied
//   - Renewed: the id was rotated with Renew
//   - Purged: Purge or Destroy was called; further mutations are dropped
//
// Mutating a purged session is a silent no-op rather than an error, so request
// pipelines can finish unconditionally without resurrecting data. Renew is
// applied once; a second call is a no-op. Purge only clears memory, while
// Destroy also removes the stored record.
//
// Save writes at most once per dirty interval: repeated or concurrent calls
// without an intervening mutation issue a single backend write.
//
// # Id Generation and Verification
//
// The default generator produces 32 random bytes encoded as base64url
// (TokenGenerator) and the default verifier checks that shape (TokenVerifier).
// UUIDGenerator and UUIDVerifier are available as an alternative. Ids that fail
// verification are treated as "no session": Store.Get returns a fresh session
// without touching the backend.
//
// # Configuration Options
//
//	session.WithMaxAge(duration)      // Record ttl (default: 24h)
//	session.WithCookieName(name)      // Transport name of the id (default: "sid")
//	session.WithGenerator(fn)         // Id generator (default: TokenGenerator)
//	session.WithVerifier(fn)          // Id verifier (default: TokenVerifier)
//	session.WithLogger(logger)        // Structured logger (default: discard)
//
// Config carries the same settings with env tags for core/config.
//
// # Error Handling
//
//   - ErrStorage: backend I/O or connection failure
//   - ErrSerialization: a value could not be encoded or decoded
//   - ErrConcurrency: a lifecycle operation could not take the session's persist slot
//   - ErrInvalidID: a backend cannot address the id
//   - ErrRenewIncomplete: the old record was removed but the new one was not stored
//
// Typed reads (Get, Remove) treat decode failures as absent. Save, Renew and
// Destroy propagate backend errors and never retry.
//
// # Thread Safety
//
// Data and id are guarded by a single RWMutex. Status is an atomic value, and
// every transition is stored while holding the write lock, before the data
// change it reports becomes visible.
package session
