package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"provider-host/internal/models"
	"provider-host/internal/storage"
	"provider-host/internal/storage/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) storage.MemoryRepository {
	t.Helper()
	repo, err := sqlite.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo.Memory()
}

func seed(t *testing.T, repo storage.MemoryRepository, userID, content string, createdAt time.Time) *models.MemoryItem {
	t.Helper()
	item := &models.MemoryItem{
		UserID:    userID,
		Memory:    content,
		Metadata:  models.JSON{"source": "test"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), item))
	return item
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := seed(t, repo, "alice", "Likes green tea", now)
	assert.NotEmpty(t, item.ID)

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Likes green tea", got.Memory)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, models.JSON{"source": "test"}, got.Metadata)
	assert.True(t, now.Equal(got.CreatedAt))

	missing, err := repo.GetByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	item := seed(t, repo, "alice", "old", time.Now().UTC())

	later := item.UpdatedAt.Add(time.Second)
	updated, err := repo.Update(ctx, item.ID, func(m *models.MemoryItem) error {
		m.Memory = "new"
		m.Metadata["edited"] = true
		m.UpdatedAt = later
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Memory)

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Memory)
	assert.Equal(t, true, got.Metadata["edited"])
	assert.True(t, later.Equal(got.UpdatedAt))

	t.Run("missing id", func(t *testing.T) {
		_, err := repo.Update(ctx, "nope", func(m *models.MemoryItem) error { return nil })
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("mutate error writes nothing", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := repo.Update(ctx, item.ID, func(m *models.MemoryItem) error {
			m.Memory = "should not persist"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", got.Memory)
	})
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	item := seed(t, repo, "alice", "temp", time.Now().UTC())

	require.NoError(t, repo.Delete(ctx, item.ID))
	assert.ErrorIs(t, repo.Delete(ctx, item.ID), storage.ErrNotFound)

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepository_ListAndSearch(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		seed(t, repo, "alice", fmt.Sprintf("note %d", i), base.Add(time.Duration(i)*time.Millisecond))
	}
	seed(t, repo, "alice", "Remember the Capital", base.Add(10*time.Millisecond))
	seed(t, repo, "alice", "100% sure_thing", base.Add(11*time.Millisecond))
	seed(t, repo, "bob", "capital of france", base)

	t.Run("pagination with total", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.MemoryFilter{UserID: "alice", Limit: 3, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(7), total)
		require.Len(t, items, 3)
		assert.Equal(t, "note 2", items[0].Memory)
		assert.Equal(t, "note 4", items[2].Memory)
	})

	t.Run("offset without limit", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.MemoryFilter{UserID: "alice", Offset: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(7), total)
		assert.Len(t, items, 2)
	})

	t.Run("case insensitive search", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.MemoryFilter{UserID: "alice", Query: "CAPITAL"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "Remember the Capital", items[0].Memory)
	})

	t.Run("wildcards are literal", func(t *testing.T) {
		items, _, err := repo.List(ctx, models.MemoryFilter{UserID: "alice", Query: "0% sure_"})
		require.NoError(t, err)
		require.Len(t, items, 1)

		items, _, err = repo.List(ctx, models.MemoryFilter{UserID: "alice", Query: "%"})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("unknown user is empty", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.MemoryFilter{UserID: "carol"})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestMemoryRepository_SearchFoldsUnicode(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().UTC()

	seed(t, repo, "alice", "Über die École in Straße", base)
	seed(t, repo, "alice", "ЖУРНАЛ за май", base.Add(time.Millisecond))
	seed(t, repo, "alice", "plain ascii", base.Add(2*time.Millisecond))

	tests := []struct {
		query string
		want  string
	}{
		{"über", "Über die École in Straße"},
		{"ÜBER", "Über die École in Straße"},
		{"Über", "Über die École in Straße"},
		{"école", "Über die École in Straße"},
		{"STRASSE", ""},
		{"straße", "Über die École in Straße"},
		{"журнал", "ЖУРНАЛ за май"},
		{"ЗА МАЙ", "ЖУРНАЛ за май"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			items, total, err := repo.List(ctx, models.MemoryFilter{UserID: "alice", Query: tt.query})
			require.NoError(t, err)
			if tt.want == "" {
				assert.Zero(t, total)
				return
			}
			assert.Equal(t, int64(1), total)
			require.Len(t, items, 1)
			assert.Equal(t, tt.want, items[0].Memory)
		})
	}
}

func TestMemoryRepository_SearchKeepsSurroundingSpaces(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().UTC()

	seed(t, repo, "alice", "weekly recap", base)
	seed(t, repo, "alice", "new cap for winter", base.Add(time.Millisecond))

	items, total, err := repo.List(ctx, models.MemoryFilter{UserID: "alice", Query: " cap"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "new cap for winter", items[0].Memory)
}

func TestMemoryRepository_UsersAndStats(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().UTC()

	seed(t, repo, "alice", "a1", base)
	seed(t, repo, "alice", "a2", base.Add(time.Second))
	seed(t, repo, "bob", "b1", base)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].UserID)
	assert.Equal(t, int64(2), users[0].MemoryCount)
	require.NotNil(t, users[0].LastMemoryAt)
	assert.True(t, base.Add(time.Second).Equal(*users[0].LastMemoryAt))

	stats, err := repo.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMemories)
	require.NotNil(t, stats.OldestMemory)
	assert.True(t, base.Equal(*stats.OldestMemory))

	removed, err := repo.DeleteByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	users, err = repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].UserID)

	stats, err = repo.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMemories)
	assert.Nil(t, stats.NewestMemory)
}
