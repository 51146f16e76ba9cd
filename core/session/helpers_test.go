package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessions/core/session"
)

// mockStorage implements session.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Get(ctx context.Context, id string) (session.Data, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(session.Data), args.Error(1)
}

func (m *mockStorage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	args := m.Called(ctx, id, data, ttl)
	return args.Error(0)
}

func (m *mockStorage) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStorage) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStorage) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// countingStorage counts backend calls on top of a real storage.
type countingStorage struct {
	session.Storage
	sets    atomic.Int64
	removes atomic.Int64
}

func (c *countingStorage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	c.sets.Add(1)
	return c.Storage.Set(ctx, id, data, ttl)
}

func (c *countingStorage) Remove(ctx context.Context, id string) error {
	c.removes.Add(1)
	return c.Storage.Remove(ctx, id)
}

// anyID accepts every non-empty id so tests can use readable ids like "abc".
func anyID(id string) bool { return id != "" }

func newTestStore(t *testing.T, storage session.Storage, opts ...session.Option) *session.Store {
	t.Helper()
	opts = append([]session.Option{
		session.WithVerifier(anyID),
		session.WithMaxAge(time.Hour),
	}, opts...)
	store, err := session.NewStore(storage, opts...)
	require.NoError(t, err)
	return store
}

func sequenceGenerator(ids ...string) session.Generator {
	var n atomic.Int64
	return func() string {
		i := n.Add(1) - 1
		if int(i) < len(ids) {
			return ids[i]
		}
		return session.TokenGenerator()
	}
}
