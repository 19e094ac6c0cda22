package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"provider-host/internal/storage"
	"provider-host/internal/storage/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLocation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		location string
		want     string
		wantErr  bool
	}{
		{"empty", "  ", "", true},
		{"memory", ":memory:", ":memory:", false},
		{"postgres url", "postgres://u:p@localhost/db", "postgres://u:p@localhost/db", false},
		{"existing directory", dir, filepath.Join(dir, DatabaseFileName), false},
		{"new directory", filepath.Join(dir, "nested", "store"), filepath.Join(dir, "nested", "store", DatabaseFileName), false},
		{"explicit file", filepath.Join(dir, "custom.sqlite"), filepath.Join(dir, "custom.sqlite"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := os.Stat(filepath.Join(dir, "nested", "store"))
	assert.NoError(t, err, "parent directory is created")
}

func TestPool_SharesEngines(t *testing.T) {
	opened := 0
	pool := NewPool(func(ctx context.Context, location string) (storage.Repository, error) {
		opened++
		return sqlite.NewRepository(location)
	})
	t.Cleanup(func() { pool.Close() })

	dir := t.TempDir()
	ctx := context.Background()

	first, err := pool.Acquire(ctx, dir)
	require.NoError(t, err)
	second, err := pool.Acquire(ctx, filepath.Join(dir, DatabaseFileName))
	require.NoError(t, err)

	assert.Same(t, first.Engine, second.Engine)
	assert.Equal(t, 1, opened)

	item, err := first.Add(ctx, "shared", nil, "alice")
	require.NoError(t, err)
	got, err := second.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Memory)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	third, err := pool.Acquire(ctx, dir)
	require.NoError(t, err)
	assert.Same(t, second.Engine, third.Engine)
	assert.Equal(t, 1, opened)

	require.NoError(t, second.Release())
	require.NoError(t, third.Release())

	reopened, err := pool.Acquire(ctx, dir)
	require.NoError(t, err)
	defer reopened.Release()
	assert.Equal(t, 2, opened)

	got, err = reopened.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Memory, "data survives reopening the file")
}

func TestPool_StaleLeaseAfterClose(t *testing.T) {
	opened := 0
	pool := NewPool(func(ctx context.Context, location string) (storage.Repository, error) {
		opened++
		return sqlite.NewRepository(location)
	})
	t.Cleanup(func() { pool.Close() })

	dir := t.TempDir()
	ctx := context.Background()

	stale, err := pool.Acquire(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	fresh, err := pool.Acquire(ctx, dir)
	require.NoError(t, err)
	defer fresh.Release()
	assert.Equal(t, 2, opened)

	// the old lease must not drop the new entry's only reference
	require.NoError(t, stale.Release())

	_, err = fresh.Add(ctx, "still open", nil, "alice")
	require.NoError(t, err)

	again, err := pool.Acquire(ctx, dir)
	require.NoError(t, err)
	defer again.Release()
	assert.Same(t, fresh.Engine, again.Engine)
	assert.Equal(t, 2, opened)
}

func TestPool_DistinctLocations(t *testing.T) {
	pool := NewPool(nil)
	t.Cleanup(func() { pool.Close() })
	ctx := context.Background()

	a, err := pool.Acquire(ctx, filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	b, err := pool.Acquire(ctx, filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, err)
	assert.NotSame(t, a.Engine, b.Engine)

	_, err = a.Add(ctx, "only in a", nil, "alice")
	require.NoError(t, err)

	page, err := b.List(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestRedactLocation(t *testing.T) {
	assert.Equal(t, "postgres://app:****@db:5432/memories", redactLocation("postgres://app:hunter2@db:5432/memories"))
	assert.Equal(t, "postgres://db/memories", redactLocation("postgres://db/memories"))
	assert.Equal(t, "/var/lib/memories.db", redactLocation("/var/lib/memories.db"))
}

func TestSwitch(t *testing.T) {
	s := NewSwitch(true)
	assert.True(t, s.Enabled())
	assert.True(t, s.Set(false))
	assert.False(t, s.Set(false))
	assert.False(t, s.Enabled())

	var none *Switch
	assert.True(t, none.Enabled())
}

func TestKeyedMutex_ReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Zero(t, k.size())
}
