// Package sessiontest provides a reusable test-suite that verifies a
// session.Storage implementation honours the storage contract.
package sessiontest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessions/core/session"
)

// Options tunes the contract for backends with coarse expiry.
type Options struct {
	// Expire makes records written with ttl appear expired. Backends keeping
	// wall-clock expiry can leave it nil; the suite then sleeps past the ttl.
	// Backends with native TTL (e.g. miniredis) fast-forward their clock here.
	Expire func(ttl time.Duration)
	// SkipReset skips the Reset checks for backends shared with other data.
	SkipReset bool
}

// RunStorageContract runs the storage contract against storage.
// The storage is reset between subtests and closed at the end.
func RunStorageContract(t *testing.T, storage session.Storage, opts ...Options) {
	t.Helper()

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Expire == nil {
		o.Expire = func(ttl time.Duration) { time.Sleep(ttl + 20*time.Millisecond) }
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("contract-%d", time.Now().UnixNano())
	data := func(kv map[string]any) session.Data {
		d := make(session.Data, len(kv))
		for k, v := range kv {
			b, err := json.Marshal(v)
			require.NoError(t, err)
			d[k] = b
		}
		return d
	}

	t.Run("get absent returns nil", func(t *testing.T) {
		got, err := storage.Get(ctx, prefix+"-missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set then get", func(t *testing.T) {
		id := prefix + "-set"
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"count": 1, "name": "alice"}), time.Minute))

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, `1`, string(got["count"]))
		assert.JSONEq(t, `"alice"`, string(got["name"]))
	})

	t.Run("set replaces existing record", func(t *testing.T) {
		id := prefix + "-replace"
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"a": 1, "b": 2}), time.Minute))
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"a": 3}), time.Minute))

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.JSONEq(t, `3`, string(got["a"]))
		_, ok := got["b"]
		assert.False(t, ok, "replaced record must not keep old keys")
	})

	t.Run("empty data round trips", func(t *testing.T) {
		id := prefix + "-empty"
		require.NoError(t, storage.Set(ctx, id, session.Data{}, time.Minute))

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got, "an empty record is still present")
		assert.Empty(t, got)
	})

	t.Run("remove deletes record", func(t *testing.T) {
		id := prefix + "-remove"
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"x": true}), time.Minute))
		require.NoError(t, storage.Remove(ctx, id))

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("remove absent is not an error", func(t *testing.T) {
		assert.NoError(t, storage.Remove(ctx, prefix+"-never-stored"))
	})

	t.Run("expired record is absent", func(t *testing.T) {
		id := prefix + "-expire"
		ttl := 50 * time.Millisecond
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"v": 1}), ttl))

		o.Expire(ttl)

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)

		// A second lookup must not resurrect a stale record.
		got, err = storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("zero ttl record is absent", func(t *testing.T) {
		id := prefix + "-zero-ttl"
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"v": 1}), 0))

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set resets expiry", func(t *testing.T) {
		id := prefix + "-refresh"
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"v": 1}), time.Millisecond))
		require.NoError(t, storage.Set(ctx, id, data(map[string]any{"v": 2}), time.Hour))

		got, err := storage.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, `2`, string(got["v"]))
	})

	t.Run("concurrent writers do not corrupt unrelated records", func(t *testing.T) {
		const n = 20
		var wg sync.WaitGroup
		wg.Add(n)
		for i := range n {
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("%s-concurrent-%d", prefix, i)
				assert.NoError(t, storage.Set(ctx, id, data(map[string]any{"i": i}), time.Minute))
			}(i)
		}
		wg.Wait()

		for i := range n {
			got, err := storage.Get(ctx, fmt.Sprintf("%s-concurrent-%d", prefix, i))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.JSONEq(t, fmt.Sprint(i), string(got["i"]))
		}
	})

	if !o.SkipReset {
		t.Run("reset clears all records", func(t *testing.T) {
			id1, id2 := prefix+"-reset-1", prefix+"-reset-2"
			require.NoError(t, storage.Set(ctx, id1, data(map[string]any{"v": 1}), time.Minute))
			require.NoError(t, storage.Set(ctx, id2, data(map[string]any{"v": 2}), time.Minute))

			require.NoError(t, storage.Reset(ctx))

			for _, id := range []string{id1, id2} {
				got, err := storage.Get(ctx, id)
				require.NoError(t, err)
				assert.Nil(t, got)
			}
		})
	}

	t.Run("close is idempotent", func(t *testing.T) {
		assert.NoError(t, storage.Close(ctx))
		assert.NoError(t, storage.Close(ctx))
	})
}
