package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessions/core/session"
)

type profile struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func TestSession_FreshSaveAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, session.NewMemoryStorage())

	sess := store.New("abc")
	assert.Equal(t, "abc", sess.ID())
	assert.True(t, sess.IsFresh())
	assert.Equal(t, session.Unchanged, sess.Status())

	prev, ok, err := session.Set(sess, "count", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, prev)

	count, ok := session.Get[int](sess, "count")
	require.True(t, ok)
	assert.Equal(t, 1, count)

	require.NoError(t, sess.Save(ctx))

	loaded, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, loaded.IsFresh())
	assert.Equal(t, "abc", loaded.ID())
	assert.Equal(t, session.Unchanged, loaded.Status())

	count, ok = session.Get[int](loaded, "count")
	require.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestSession_TypedAccessors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, session.NewMemoryStorage())

	t.Run("round trip of structured value", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		p := profile{Name: "alice", Roles: []string{"admin", "dev"}}

		_, _, err := session.Set(sess, "profile", p)
		require.NoError(t, err)

		got, ok := session.Get[profile](sess, "profile")
		require.True(t, ok)
		assert.Equal(t, p, got)
	})

	t.Run("set returns previous value", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		_, _, err := session.Set(sess, "theme", "light")
		require.NoError(t, err)

		prev, ok, err := session.Set(sess, "theme", "dark")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "light", prev)
	})

	t.Run("wrong type reads as absent", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		_, _, err := session.Set(sess, "name", "alice")
		require.NoError(t, err)

		n, ok := session.Get[int](sess, "name")
		assert.False(t, ok)
		assert.Zero(t, n)

		p, ok := session.Get[profile](sess, "name")
		assert.False(t, ok)
		assert.Equal(t, profile{}, p)
	})

	t.Run("missing key reads as absent", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		_, ok := session.Get[string](sess, "missing")
		assert.False(t, ok)
	})

	t.Run("remove returns removed value", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		_, _, err := session.Set(sess, "crate", "sessions")
		require.NoError(t, err)

		v, ok := session.Remove[string](sess, "crate")
		require.True(t, ok)
		assert.Equal(t, "sessions", v)

		_, ok = session.Remove[string](sess, "crate")
		assert.False(t, ok)
		_, ok = session.Get[string](sess, "crate")
		assert.False(t, ok)
	})

	t.Run("unencodable value is rejected", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")

		_, _, err := session.Set(sess, "fn", func() {})
		require.ErrorIs(t, err, session.ErrSerialization)
		assert.Equal(t, session.Unchanged, sess.Status())
		_, ok := sess.Get("fn")
		assert.False(t, ok)
	})
}

func TestSession_StatusTransitions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, session.NewMemoryStorage())

	t.Run("mutations move unchanged to changed", func(t *testing.T) {
		t.Parallel()
		for name, mutate := range map[string]func(*session.Session){
			"set":    func(s *session.Session) { _, _, _ = s.Set("k", 1) },
			"remove": func(s *session.Session) { s.Remove("k") },
			"clear":  func(s *session.Session) { s.Clear() },
		} {
			sess := store.New("")
			mutate(sess)
			assert.Equal(t, session.Changed, sess.Status(), name)
		}
	})

	t.Run("renewed stays renewed on mutation", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		require.NoError(t, sess.Renew(context.Background()))
		_, _, err := sess.Set("k", 1)
		require.NoError(t, err)
		assert.Equal(t, session.Renewed, sess.Status())
	})

	t.Run("purge is terminal", func(t *testing.T) {
		t.Parallel()
		sess := store.New("")
		_, _, err := sess.Set("k", 1)
		require.NoError(t, err)

		sess.Purge()
		assert.Equal(t, session.Purged, sess.Status())
		require.NoError(t, sess.Renew(context.Background()))
		assert.Equal(t, session.Purged, sess.Status())
	})
}

func TestSession_PurgeDropsMutations(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, session.NewMemoryStorage())
	sess := store.New("abc")
	_, _, err := session.Set(sess, "a", 1)
	require.NoError(t, err)
	_, _, err = session.Set(sess, "b", 2)
	require.NoError(t, err)

	sess.Purge()
	afterPurge := sess.Data()
	assert.Empty(t, afterPurge)

	prev, ok, err := session.Set(sess, "a", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, prev)

	_, ok = session.Remove[int](sess, "b")
	assert.False(t, ok)
	sess.Clear()

	_, ok = session.Get[int](sess, "a")
	assert.False(t, ok)
	assert.Equal(t, afterPurge, sess.Data())
	assert.Equal(t, session.Purged, sess.Status())
}

func TestSession_PurgeDoesNotTouchStorage(t *testing.T) {
	t.Parallel()

	storage := &mockStorage{}
	store := newTestStore(t, storage)
	sess := store.New("abc")
	_, _, err := sess.Set("k", 1)
	require.NoError(t, err)

	sess.Purge()
	require.NoError(t, sess.Save(context.Background()))

	storage.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	storage.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestSession_SaveAtMostOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("two saves issue one write", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Set", mock.Anything, "abc", mock.Anything, time.Hour).Return(nil)
		store := newTestStore(t, storage)

		sess := store.New("abc")
		_, _, err := sess.Set("count", 1)
		require.NoError(t, err)

		require.NoError(t, sess.Save(ctx))
		require.NoError(t, sess.Save(ctx))

		storage.AssertNumberOfCalls(t, "Set", 1)
	})

	t.Run("mutation after save makes it dirty again", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Set", mock.Anything, "abc", mock.Anything, time.Hour).Return(nil)
		store := newTestStore(t, storage)

		sess := store.New("abc")
		_, _, err := sess.Set("count", 1)
		require.NoError(t, err)
		require.NoError(t, sess.Save(ctx))

		_, _, err = sess.Set("count", 2)
		require.NoError(t, err)
		require.NoError(t, sess.Save(ctx))
		require.NoError(t, sess.Save(ctx))

		storage.AssertNumberOfCalls(t, "Set", 2)
	})

	t.Run("unchanged session is not written", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		store := newTestStore(t, storage)

		require.NoError(t, store.New("abc").Save(ctx))
		storage.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("saved snapshot matches data", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Set", mock.Anything, "abc", mock.MatchedBy(func(d session.Data) bool {
			return string(d["count"]) == "7"
		}), time.Hour).Return(nil).Once()
		store := newTestStore(t, storage)

		sess := store.New("abc")
		_, _, err := session.Set(sess, "count", 7)
		require.NoError(t, err)
		require.NoError(t, sess.Save(ctx))
		storage.AssertExpectations(t)
	})
}

func TestSession_SaveGeneratesID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := session.NewMemoryStorage()
	store := newTestStore(t, storage, session.WithGenerator(sequenceGenerator("generated-id")))

	sess := store.New("")
	assert.Empty(t, sess.ID())

	_, _, err := sess.Set("k", "v")
	require.NoError(t, err)
	require.NoError(t, sess.Save(ctx))
	assert.Equal(t, "generated-id", sess.ID())

	data, err := storage.Get(ctx, "generated-id")
	require.NoError(t, err)
	assert.JSONEq(t, `"v"`, string(data["k"]))
}

func TestSession_SaveFailureKeepsData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := &mockStorage{}
	boom := errors.New("connection reset")
	storage.On("Set", mock.Anything, "abc", mock.Anything, time.Hour).Return(boom).Once()
	storage.On("Set", mock.Anything, "abc", mock.Anything, time.Hour).Return(nil).Once()
	store := newTestStore(t, storage)

	sess := store.New("abc")
	_, _, err := session.Set(sess, "cart", []string{"apple"})
	require.NoError(t, err)

	err = sess.Save(ctx)
	require.ErrorIs(t, err, session.ErrStorage)
	require.ErrorIs(t, err, boom)

	cart, ok := session.Get[[]string](sess, "cart")
	require.True(t, ok)
	assert.Equal(t, []string{"apple"}, cart)

	require.NoError(t, sess.Save(ctx))
	storage.AssertNumberOfCalls(t, "Set", 2)
}

func TestSession_Renew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rotates id and removes old record", func(t *testing.T) {
		t.Parallel()
		storage := session.NewMemoryStorage()
		store := newTestStore(t, storage, session.WithGenerator(sequenceGenerator("new-1", "new-2")))

		sess := store.New("abc")
		_, _, err := session.Set(sess, "count", 1)
		require.NoError(t, err)
		require.NoError(t, sess.Save(ctx))

		require.NoError(t, sess.Renew(ctx))
		assert.Equal(t, "new-1", sess.ID())
		assert.Equal(t, session.Renewed, sess.Status())
		assert.Empty(t, sess.Data())

		require.NoError(t, sess.Renew(ctx))
		assert.Equal(t, "new-1", sess.ID(), "second renew is a no-op")

		old, err := storage.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Nil(t, old)

		renewed, err := storage.Get(ctx, "new-1")
		require.NoError(t, err)
		assert.NotNil(t, renewed)
	})

	t.Run("renewed session is persisted without another save", func(t *testing.T) {
		t.Parallel()
		storage := &countingStorage{Storage: session.NewMemoryStorage()}
		store := newTestStore(t, storage, session.WithGenerator(sequenceGenerator("new-1")))

		sess := store.New("")
		require.NoError(t, sess.Renew(ctx))
		require.NoError(t, sess.Save(ctx))

		assert.EqualValues(t, 1, storage.sets.Load())
		assert.EqualValues(t, 0, storage.removes.Load(), "fresh session has no old record")
	})

	t.Run("failed remove surfaces storage error", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Remove", mock.Anything, "abc").Return(errors.New("timeout"))
		store := newTestStore(t, storage, session.WithGenerator(sequenceGenerator("new-1")))

		sess := store.New("abc")
		err := sess.Renew(ctx)
		require.ErrorIs(t, err, session.ErrStorage)
		assert.NotErrorIs(t, err, session.ErrRenewIncomplete)
		assert.Equal(t, "new-1", sess.ID())
		assert.Equal(t, session.Renewed, sess.Status())
	})

	t.Run("failed set after remove reports incomplete renew", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Remove", mock.Anything, "abc").Return(nil)
		storage.On("Set", mock.Anything, "new-1", mock.Anything, time.Hour).Return(errors.New("write failed")).Once()
		storage.On("Set", mock.Anything, "new-1", mock.Anything, time.Hour).Return(nil).Once()
		store := newTestStore(t, storage, session.WithGenerator(sequenceGenerator("new-1")))

		sess := store.New("abc")
		err := sess.Renew(ctx)
		require.ErrorIs(t, err, session.ErrRenewIncomplete)
		require.ErrorIs(t, err, session.ErrStorage)
		assert.Equal(t, "new-1", sess.ID())
		assert.Equal(t, session.Renewed, sess.Status())

		// The new record is still pending and a later save stores it.
		require.NoError(t, sess.Save(ctx))
		storage.AssertNumberOfCalls(t, "Set", 2)
	})
}

func TestSession_Destroy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("removes backing record", func(t *testing.T) {
		t.Parallel()
		storage := session.NewMemoryStorage()
		store := newTestStore(t, storage)

		sess := store.New("abc")
		_, _, err := session.Set(sess, "count", 1)
		require.NoError(t, err)
		require.NoError(t, sess.Save(ctx))
		assert.Equal(t, session.Changed, sess.Status())

		require.NoError(t, sess.Destroy(ctx))
		assert.Equal(t, session.Purged, sess.Status())

		loaded, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, loaded.IsFresh())
		assert.Empty(t, loaded.ID())

		_, _, err = session.Set(sess, "count", 2)
		require.NoError(t, err)
		_, ok := session.Get[int](sess, "count")
		assert.False(t, ok)
		require.NoError(t, sess.Save(ctx))

		data, err := storage.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Nil(t, data, "destroyed session must not be resurrected by save")
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()
		storage := session.NewMemoryStorage()
		store := newTestStore(t, storage)

		sess := store.New("abc")
		require.NoError(t, sess.Destroy(ctx))
		require.NoError(t, sess.Destroy(ctx))
	})

	t.Run("session without id does no storage io", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		store := newTestStore(t, storage)

		require.NoError(t, store.New("").Destroy(ctx))
		storage.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
	})

	t.Run("propagates storage failure", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Remove", mock.Anything, "abc").Return(context.DeadlineExceeded)
		store := newTestStore(t, storage)

		err := store.New("abc").Destroy(ctx)
		require.ErrorIs(t, err, session.ErrStorage)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// blockingStorage holds Set until release is closed.
type blockingStorage struct {
	session.Storage
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStorage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	close(b.entered)
	<-b.release
	return b.Storage.Set(ctx, id, data, ttl)
}

func TestSession_PersistSlotTimeout(t *testing.T) {
	t.Parallel()

	storage := &blockingStorage{
		Storage: session.NewMemoryStorage(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := newTestStore(t, storage)
	sess := store.New("abc")
	_, _, err := sess.Set("k", 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Save(context.Background()) }()
	<-storage.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = sess.Destroy(ctx)
	require.ErrorIs(t, err, session.ErrConcurrency)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, session.Purged, sess.Status(), "in-memory purge applies even when storage removal is abandoned")

	close(storage.release)
	require.NoError(t, <-done)
}

// blockingRemoveStorage holds Remove until release is closed.
type blockingRemoveStorage struct {
	session.Storage
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemoveStorage) Remove(ctx context.Context, id string) error {
	select {
	case <-b.entered:
	default:
		close(b.entered)
	}
	<-b.release
	return b.Storage.Remove(ctx, id)
}

func TestSession_DestroyDuringRenew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	memory := session.NewMemoryStorage()
	require.NoError(t, memory.Set(ctx, "abc", session.Data{"k": []byte(`1`)}, time.Hour))

	storage := &blockingRemoveStorage{
		Storage: memory,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := newTestStore(t, storage)
	sess, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", sess.ID())

	renewed := make(chan error, 1)
	go func() { renewed <- sess.Renew(ctx) }()
	<-storage.entered
	newID := sess.ID()
	require.NotEqual(t, "abc", newID)

	destroyed := make(chan error, 1)
	go func() { destroyed <- sess.Destroy(ctx) }()
	assert.Eventually(t, func() bool { return sess.Status() == session.Purged }, time.Second, time.Millisecond)

	close(storage.release)
	assert.ErrorIs(t, <-renewed, session.ErrConcurrency)
	require.NoError(t, <-destroyed)
	assert.Equal(t, session.Purged, sess.Status())

	for _, id := range []string{"abc", newID} {
		got, err := memory.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got, "no record under %s", id)
	}
	assert.Zero(t, memory.Stats().ActiveRecords)
}
