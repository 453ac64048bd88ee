package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diesmo/scripthost/internal/value"
)

// backends runs a subtest against both backing implementations.
func backends(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := New(NewMemory())
		defer s.Close()
		fn(t, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		backend, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
		require.NoError(t, err)
		s := New(backend)
		defer s.Close()
		fn(t, s)
	})
}

func TestStore_SetGetUnset(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Script("greeter")

		require.NoError(t, s.Set(ctx, sel, "greeting", value.String("hello")))

		v, ok, err := s.Get(ctx, sel, "greeting")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, value.Equal(value.String("hello"), v))

		require.NoError(t, s.Unset(ctx, sel, "greeting"))
		_, ok, err = s.Get(ctx, sel, "greeting")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_LastWriteWins(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Global()

		require.NoError(t, s.Set(ctx, sel, "k", value.Int(1)))
		require.NoError(t, s.Set(ctx, sel, "k", value.Int(2)))

		v, ok, err := s.Get(ctx, sel, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, value.Equal(value.Int(2), v))
	})
}

func TestStore_ConcurrentWritersDistinctKeys(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Global()

		const writers = 8
		const rounds = 25

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for w := 0; w < writers; w++ {
			w := w
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("k%d", w)
				for i := 1; i <= rounds; i++ {
					if err := s.Set(ctx, sel, key, value.Int(int64(i))); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent set failed: %v", err)
		}

		// Each key holds its own writer's final value.
		for w := 0; w < writers; w++ {
			v, ok, err := s.Get(ctx, sel, fmt.Sprintf("k%d", w))
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, value.Equal(value.Int(rounds), v))
		}
	})
}

func TestStore_StoredNullDistinctFromAbsent(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Script("s")

		v, ok, err := s.Get(ctx, sel, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)

		require.NoError(t, s.Set(ctx, sel, "present", value.Null{}))
		v, ok, err = s.Get(ctx, sel, "present")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, value.Equal(value.Null{}, v))
	})
}

func TestStore_TiersAreIsolated(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, Instance("s", "i1"), "k", value.String("instance")))
		require.NoError(t, s.Set(ctx, Script("s"), "k", value.String("script")))
		require.NoError(t, s.Set(ctx, Global(), "k", value.String("global")))

		v, ok, err := s.Get(ctx, Instance("s", "i1"), "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, value.Equal(value.String("instance"), v))

		v, _, _ = s.Get(ctx, Script("s"), "k")
		assert.True(t, value.Equal(value.String("script"), v))

		v, _, _ = s.Get(ctx, Global(), "k")
		assert.True(t, value.Equal(value.String("global"), v))

		// Other owners within a tier do not see each other's keys.
		_, ok, err = s.Get(ctx, Instance("s", "i2"), "k")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = s.Get(ctx, Script("other"), "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_KeysSorted(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Script("s")

		for _, k := range []string{"delta", "alpha", "charlie"} {
			require.NoError(t, s.Set(ctx, sel, k, value.Int(1)))
		}

		keys, err := s.Keys(ctx, sel)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "charlie", "delta"}, keys)
	})
}

func TestStore_AllSnapshot(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Script("s")

		require.NoError(t, s.Set(ctx, sel, "a", value.Int(1)))
		require.NoError(t, s.Set(ctx, sel, "b", value.String("two")))

		all, err := s.All(ctx, sel)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.True(t, value.Equal(value.Int(1), all["a"]))
		assert.True(t, value.Equal(value.String("two"), all["b"]))

		// Mutating after the snapshot does not change it.
		require.NoError(t, s.Set(ctx, sel, "a", value.Int(99)))
		assert.True(t, value.Equal(value.Int(1), all["a"]))
	})
}

func TestStore_ValidationErrors(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		sel := Script("s")

		var vErr *ValidationError

		err := s.Set(ctx, sel, "", value.Int(1))
		require.ErrorAs(t, err, &vErr)

		err = s.Set(ctx, sel, "k", nil)
		require.ErrorAs(t, err, &vErr)

		// A cyclic tree is refused, not recursed into.
		cyclic := value.Object{}
		cyclic["self"] = cyclic
		err = s.Set(ctx, sel, "k", cyclic)
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Message, "cyclic")

		// Nothing was stored by the failed sets.
		keys, err := s.Keys(ctx, sel)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	backend, err := OpenSQLite(path)
	require.NoError(t, err)
	s := New(backend)
	require.NoError(t, s.Set(ctx, Global(), "persisted", value.Object{"n": value.Int(1)}))
	require.NoError(t, s.Close())

	backend, err = OpenSQLite(path)
	require.NoError(t, err)
	s = New(backend)
	defer s.Close()

	v, ok, err := s.Get(ctx, Global(), "persisted")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Object{"n": value.Int(1)}, v))
}
