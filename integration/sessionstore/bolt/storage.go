// Package bolt implements session.Storage on an embedded BBolt database.
// Each record is stored as JSON {"data":..., "expires_at":...} in one bucket.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dmitrymomot/sessions/core/session"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "sessions"

// Storage is a BBolt-backed session.Storage.
type Storage struct {
	db          *bbolt.DB
	bucket      []byte
	closeOnce   sync.Once
	closeResult error
}

var (
	_ session.Storage        = (*Storage)(nil)
	_ session.ExpiredCleaner = (*Storage)(nil)
)

// Option configures Storage.
type Option func(*Storage)

// WithBucket sets the bucket holding session records.
func WithBucket(name string) Option {
	return func(s *Storage) {
		if name != "" {
			s.bucket = []byte(name)
		}
	}
}

// New creates a storage on an open database, creating the bucket if needed.
// The storage takes ownership of db and closes it in Close.
func New(db *bbolt.DB, opts ...Option) (*Storage, error) {
	s := &Storage{db: db, bucket: []byte(DefaultBucket)}
	for _, opt := range opts {
		opt(s)
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, errors.Join(session.ErrStorage, fmt.Errorf("creating bucket: %w", err))
	}
	return s, nil
}

// NewFromFile opens the database at path and returns a storage on it.
func NewFromFile(path string, options *bbolt.Options, opts ...Option) (*Storage, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	}
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, errors.Join(session.ErrStorage, fmt.Errorf("opening bbolt db: %w", err))
	}

	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Get returns the stored data, or nil when absent. Expired records are deleted.
func (s *Storage) Get(ctx context.Context, id string) (session.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(session.ErrStorage, err)
	}

	var (
		rec   session.Record
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return decodeRecord(raw, &rec)
	})
	if err != nil {
		return nil, errors.Join(session.ErrStorage, err)
	}
	if !found {
		return nil, nil
	}

	now := time.Now()
	if !rec.IsExpired(now) {
		if rec.Data == nil {
			rec.Data = session.Data{}
		}
		return rec.Data, nil
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		var cur session.Record
		// Re-check: a concurrent Set may have refreshed the record.
		if err := decodeRecord(raw, &cur); err == nil && !cur.IsExpired(now) {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return nil, errors.Join(session.ErrStorage, fmt.Errorf("evicting expired session: %w", err))
	}
	return nil, nil
}

// Set stores data expiring ttl from now.
func (s *Storage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	if data == nil {
		data = session.Data{}
	}

	raw, err := json.Marshal(session.NewRecord(data, ttl))
	if err != nil {
		return errors.Join(session.ErrSerialization, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(id), raw)
	})
	if err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Remove deletes the record for id.
func (s *Storage) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(id))
	})
	if err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Reset drops and recreates the session bucket.
func (s *Storage) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// DeleteExpired removes every expired record in one transaction.
// Records that cannot be decoded are removed as well.
func (s *Storage) DeleteExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Join(session.ErrStorage, err)
	}

	now := time.Now()
	var removed int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec session.Record
			if err := decodeRecord(v, &rec); err != nil || rec.IsExpired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Join(session.ErrStorage, err)
	}
	return removed, nil
}

// Close closes the database. Safe to call repeatedly.
func (s *Storage) Close(context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			s.closeResult = errors.Join(session.ErrStorage, err)
		}
	})
	return s.closeResult
}

func decodeRecord(raw []byte, rec *session.Record) error {
	if err := json.Unmarshal(raw, rec); err != nil {
		return errors.Join(session.ErrSerialization, err)
	}
	return nil
}
