package servers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func newFilesystem(t *testing.T) (Server, string, string) {
	t.Helper()
	root := realTempDir(t)
	outside := realTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("top secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	r := NewRegistry(testDeps(t))
	return create(t, r, "filesystem", []string{root}, nil), root, outside
}

func TestFilesystemServer_ReadWrite(t *testing.T) {
	server, root, _ := newFilesystem(t)
	ctx := context.Background()
	file := filepath.Join(root, "notes", "todo.txt")

	result := server.Call(ctx, "create_directory", map[string]interface{}{"path": filepath.Join(root, "notes")})
	require.True(t, result.Success, result.Error)

	result = server.Call(ctx, "write_file", map[string]interface{}{"path": file, "content": "buy milk"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, 8, result.Data.(map[string]interface{})["bytes_written"])

	result = server.Call(ctx, "read_file", map[string]interface{}{"path": file})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "buy milk", result.Data.(map[string]interface{})["content"])

	result = server.Call(ctx, "get_file_info", map[string]interface{}{"path": file})
	require.True(t, result.Success, result.Error)
	info := result.Data.(map[string]interface{})
	assert.Equal(t, int64(8), info["size"])
	assert.Equal(t, true, info["isFile"])

	result = server.Call(ctx, "list_directory", map[string]interface{}{"path": filepath.Join(root, "notes")})
	require.True(t, result.Success, result.Error)
	entries := result.Data.(map[string]interface{})["entries"].([]map[string]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "todo.txt", entries[0]["name"])

	result = server.Call(ctx, "search_files", map[string]interface{}{"path": root, "pattern": "TODO"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{file}, result.Data.(map[string]interface{})["matches"])

	moved := filepath.Join(root, "done.txt")
	result = server.Call(ctx, "move_file", map[string]interface{}{"source": file, "destination": moved})
	require.True(t, result.Success, result.Error)
	_, err := os.Stat(moved)
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(file, []byte("again"), 0o644))
	result = server.Call(ctx, "move_file", map[string]interface{}{"source": file, "destination": moved})
	assert.Equal(t, "INVALID_INPUT", result.ErrorCode)

	result = server.Call(ctx, "read_file", map[string]interface{}{"path": filepath.Join(root, "nope.txt")})
	assert.Equal(t, "NOT_FOUND", result.ErrorCode)

	result = server.Call(ctx, "list_allowed_directories", nil)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{root}, result.Data.(map[string]interface{})["directories"])
}

func TestFilesystemServer_DeniesEscapes(t *testing.T) {
	server, root, outside := newFilesystem(t)
	ctx := context.Background()

	require.NoError(t, os.Symlink(filepath.Join(outside, "gone"), filepath.Join(root, "dangling")))

	tests := []struct {
		name  string
		tool  string
		input map[string]interface{}
	}{
		{"absolute outside", "read_file", map[string]interface{}{"path": filepath.Join(outside, "secret.txt")}},
		{"dot dot", "read_file", map[string]interface{}{"path": filepath.Join(root, "..", filepath.Base(outside), "secret.txt")}},
		{"through symlink", "read_file", map[string]interface{}{"path": filepath.Join(root, "escape", "secret.txt")}},
		{"write through symlink", "write_file", map[string]interface{}{"path": filepath.Join(root, "escape", "new.txt"), "content": "x"}},
		{"mkdir through symlink", "create_directory", map[string]interface{}{"path": filepath.Join(root, "escape", "a", "b")}},
		{"dangling symlink", "write_file", map[string]interface{}{"path": filepath.Join(root, "dangling"), "content": "x"}},
		{"move outside", "move_file", map[string]interface{}{"source": filepath.Join(root, "escape"), "destination": filepath.Join(outside, "moved")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := server.Call(ctx, tt.tool, tt.input)
			assert.False(t, result.Success)
			assert.Equal(t, "ACCESS_DENIED", result.ErrorCode)
		})
	}

	_, err := os.Stat(filepath.Join(outside, "new.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(outside, "gone"))
	assert.True(t, os.IsNotExist(err))
}
