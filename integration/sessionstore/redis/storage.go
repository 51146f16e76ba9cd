// Package redis implements session.Storage on Redis. Records are stored as
// JSON under a key prefix and expire through native key TTL.
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessions/core/session"
	dbredis "github.com/dmitrymomot/sessions/integration/database/redis"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "session:"

// Storage is a Redis-backed session.Storage.
type Storage struct {
	client      goredis.UniversalClient
	prefix      string
	scanCount   int64
	ownsClient  bool
	closeOnce   sync.Once
	closeResult error
}

var _ session.Storage = (*Storage)(nil)

// Option configures Storage.
type Option func(*Storage)

// WithPrefix sets the key prefix for session records.
func WithPrefix(prefix string) Option {
	return func(s *Storage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithScanCount sets the SCAN COUNT hint used by Reset.
func WithScanCount(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.scanCount = int64(n)
		}
	}
}

// WithOwnedClient makes Close also close the Redis client.
func WithOwnedClient() Option {
	return func(s *Storage) {
		s.ownsClient = true
	}
}

// New creates a storage on top of an existing client.
func New(client goredis.UniversalClient, opts ...Option) *Storage {
	s := &Storage{
		client:    client,
		prefix:    DefaultPrefix,
		scanCount: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) key(id string) string {
	return s.prefix + id
}

// Get returns the stored data, or nil when the key is absent or expired.
func (s *Storage) Get(ctx context.Context, id string) (session.Data, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, errors.Join(session.ErrStorage, err)
	}

	data, err := session.DecodeData(b)
	if err != nil {
		return nil, errors.Join(session.ErrStorage, err)
	}
	if data == nil {
		data = session.Data{}
	}
	return data, nil
}

// Set writes data with the given ttl. A non-positive ttl deletes the key.
func (s *Storage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Remove(ctx, id)
	}

	b, err := session.EncodeData(data)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(id), b, ttl).Err(); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Remove deletes the key for id.
func (s *Storage) Remove(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Reset deletes every key under the storage prefix. Other keys in the same
// database are left untouched.
func (s *Storage) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", s.scanCount).Iterator()

	batch := make([]string, 0, s.scanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= s.scanCount {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return errors.Join(session.ErrStorage, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return errors.Join(session.ErrStorage, err)
		}
	}
	return nil
}

// Healthcheck pings the Redis server.
func (s *Storage) Healthcheck(ctx context.Context) error {
	return dbredis.Healthcheck(s.client)(ctx)
}

// Close closes the client when the storage owns it. Safe to call repeatedly.
func (s *Storage) Close(context.Context) error {
	s.closeOnce.Do(func() {
		if s.ownsClient {
			if err := s.client.Close(); err != nil {
				s.closeResult = errors.Join(session.ErrStorage, err)
			}
		}
	})
	return s.closeResult
}
