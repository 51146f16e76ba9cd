package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/sessions/core/logger"
)

// MemoryStorage implements Storage with an in-process map.
// Expired records are evicted lazily on Get; Start runs an optional
// background sweep for records that are never looked up again.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]Record

	// Configuration
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	cancel  context.CancelFunc
	closed  bool
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	recordsStored  atomic.Int64
	recordsEvicted atomic.Int64
}

var (
	_ Storage        = (*MemoryStorage)(nil)
	_ ExpiredCleaner = (*MemoryStorage)(nil)
)

// MemoryStorageStats provides observability metrics for monitoring and debugging.
type MemoryStorageStats struct {
	RecordsStored  int64 // Total number of Set calls applied
	RecordsEvicted int64 // Total number of expired records removed
	ActiveRecords  int   // Current number of records, expired or not
	IsRunning      bool  // Whether the cleanup goroutine is running
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets the interval of the background sweep.
// Set to 0 to rely on lazy eviction only.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		ms.cleanupInterval = interval
	}
}

// WithMemoryStorageShutdownTimeout sets the graceful shutdown timeout.
func WithMemoryStorageShutdownTimeout(timeout time.Duration) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if timeout > 0 {
			ms.shutdownTimeout = timeout
		}
	}
}

// WithMemoryStorageLogger sets the logger for internal operations.
func WithMemoryStorageLogger(logger *slog.Logger) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// NewMemoryStorage creates an in-memory storage.
// Call Start() to begin background cleanup.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		records:         make(map[string]Record),
		cleanupInterval: 5 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          logger.Discard(),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// Get returns a copy of the stored data, or nil if absent or expired.
func (ms *MemoryStorage) Get(ctx context.Context, id string) (Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	ms.mu.RLock()
	rec, ok := ms.records[id]
	ms.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	now := time.Now()
	if !rec.IsExpired(now) {
		return rec.Data.Clone(), nil
	}

	// Re-check under the write lock: a concurrent Set may have replaced the record.
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if cur, ok := ms.records[id]; ok && cur.IsExpired(now) {
		delete(ms.records, id)
		ms.recordsEvicted.Add(1)
	}
	return nil, nil
}

// Set stores a copy of data expiring ttl from now.
func (ms *MemoryStorage) Set(ctx context.Context, id string, data Data, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}

	rec := NewRecord(data.Clone(), ttl)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.records[id] = rec
	ms.recordsStored.Add(1)
	return nil
}

// Remove deletes the record for id.
func (ms *MemoryStorage) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.records, id)
	return nil
}

// Reset removes all records.
func (ms *MemoryStorage) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	clear(ms.records)
	return nil
}

// Close stops the background cleanup if it is running and prevents later
// starts. Waiting for an in-flight sweep is bounded by ctx and the shutdown
// timeout. Records stay readable. Safe to call repeatedly.
func (ms *MemoryStorage) Close(ctx context.Context) error {
	ms.mu.Lock()
	ms.closed = true
	started := ms.cancel != nil
	ms.mu.Unlock()
	if !started {
		return nil
	}
	if err := ms.stop(ctx); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// DeleteExpired removes every expired record and returns how many were removed.
func (ms *MemoryStorage) DeleteExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return ms.removeExpired(), nil
}

// Start begins the background cleanup goroutine. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern,
// StartAsync, or call this in a goroutine.
func (ms *MemoryStorage) Start(ctx context.Context) error {
	ctx, err := ms.begin(ctx)
	if err != nil {
		return err
	}
	return ms.loop(ctx)
}

// StartAsync marks the cleanup as started before returning and runs the sweep
// loop in its own goroutine. Stop or Close ends it.
func (ms *MemoryStorage) StartAsync(ctx context.Context) error {
	ctx, err := ms.begin(ctx)
	if err != nil {
		return err
	}
	go func() { _ = ms.loop(ctx) }()
	return nil
}

func (ms *MemoryStorage) begin(ctx context.Context) (context.Context, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return nil, fmt.Errorf("memory storage closed")
	}
	if ms.cancel != nil {
		return nil, fmt.Errorf("memory storage already started")
	}
	if ms.cleanupInterval <= 0 {
		return nil, fmt.Errorf("cleanup interval must be > 0, got %v (use WithCleanupInterval to configure)", ms.cleanupInterval)
	}

	ctx, ms.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (ms *MemoryStorage) loop(ctx context.Context) error {
	ms.running.Store(true)
	defer ms.running.Store(false)

	ms.logger.InfoContext(ctx, "memory session storage cleanup started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ms.logger.InfoContext(context.Background(), "memory session storage cleanup stopping")
			return ctx.Err()
		case <-ticker.C:
			ms.cleanupWithWait()
		}
	}
}

// Stop gracefully shuts down the background cleanup with a timeout.
func (ms *MemoryStorage) Stop() error {
	return ms.stop(context.Background())
}

func (ms *MemoryStorage) stop(ctx context.Context) error {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory storage not started")
	}

	cancel := ms.cancel
	ms.cancel = nil
	ms.mu.Unlock()

	cancel()

	waitCtx, waitCancel := context.WithTimeout(ctx, ms.shutdownTimeout)
	defer waitCancel()

	done := make(chan struct{})
	go func() {
		ms.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ms.logger.InfoContext(context.Background(), "memory session storage stopped cleanly")
		return nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			ms.logger.WarnContext(context.Background(), "memory session storage shutdown interrupted",
				logger.Error(err))
			return err
		}
		ms.logger.WarnContext(context.Background(), "memory session storage shutdown timeout exceeded",
			slog.Duration("timeout", ms.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", ms.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (ms *MemoryStorage) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ms.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ms.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Stats returns current storage statistics. Safe to call at any time.
func (ms *MemoryStorage) Stats() MemoryStorageStats {
	ms.mu.RLock()
	isRunning := ms.cancel != nil
	active := len(ms.records)
	ms.mu.RUnlock()

	return MemoryStorageStats{
		RecordsStored:  ms.recordsStored.Load(),
		RecordsEvicted: ms.recordsEvicted.Load(),
		ActiveRecords:  active,
		IsRunning:      isRunning,
	}
}

// Healthcheck returns an error when cleanup is configured but not started.
func (ms *MemoryStorage) Healthcheck(ctx context.Context) error {
	if ms.cleanupInterval > 0 && !ms.Stats().IsRunning {
		return fmt.Errorf("cleanup is configured but not running")
	}
	return nil
}

func (ms *MemoryStorage) cleanupWithWait() {
	ms.mu.RLock()
	if ms.cancel == nil {
		ms.mu.RUnlock()
		return
	}
	ms.wg.Add(1)
	ms.mu.RUnlock()

	defer ms.wg.Done()
	start := time.Now()
	if n := ms.removeExpired(); n > 0 {
		ms.logger.Debug("expired sessions swept",
			logger.Component("memory_storage"),
			logger.Count("removed", int(n)),
			logger.Duration(time.Since(start)),
		)
	}
}

func (ms *MemoryStorage) removeExpired() int64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, rec := range ms.records {
		if rec.IsExpired(now) {
			delete(ms.records, id)
			removed++
		}
	}

	if removed > 0 {
		ms.recordsEvicted.Add(removed)
	}
	return removed
}
