package servers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThinkingServer_TracksHistoryAndBranches(t *testing.T) {
	r := NewRegistry(testDeps(t))
	server := create(t, r, "sequential-thinking", nil, nil)
	ctx := context.Background()

	steps := []map[string]interface{}{
		{"thought": "Frame the problem", "thoughtNumber": 1, "totalThoughts": 3, "nextThoughtNeeded": true},
		{"thought": "Try approach A", "thoughtNumber": 2, "totalThoughts": 3, "nextThoughtNeeded": true, "branchFromThought": 1, "branchId": "b"},
		{"thought": "Try approach B", "thoughtNumber": 2, "totalThoughts": 3, "nextThoughtNeeded": true, "branchFromThought": 1, "branchId": "a"},
		{"thought": "Reconsider framing", "thoughtNumber": 3, "totalThoughts": 3, "nextThoughtNeeded": true, "isRevision": true, "revisesThought": 1},
	}

	var data map[string]interface{}
	for _, step := range steps {
		result := server.Call(ctx, "sequentialthinking", step)
		require.True(t, result.Success, result.Error)
		data = result.Data.(map[string]interface{})
	}

	assert.Equal(t, 4, data["thoughtHistoryLength"])
	assert.Equal(t, []string{"a", "b"}, data["branches"])
	assert.Equal(t, 3, data["thoughtNumber"])
	assert.Equal(t, true, data["nextThoughtNeeded"])
}

func TestThinkingServer_RaisesTotal(t *testing.T) {
	r := NewRegistry(testDeps(t))
	server := create(t, r, "sequential-thinking", nil, nil)

	result := server.Call(context.Background(), "sequentialthinking", map[string]interface{}{
		"thought":           "One more than planned",
		"thoughtNumber":     5,
		"totalThoughts":     3,
		"nextThoughtNeeded": false,
	})
	require.True(t, result.Success, result.Error)
	data := result.Data.(map[string]interface{})
	assert.Equal(t, 5, data["totalThoughts"])
	assert.Equal(t, false, data["nextThoughtNeeded"])
}

func TestThinkingServer_Validation(t *testing.T) {
	r := NewRegistry(testDeps(t))
	server := create(t, r, "sequential-thinking", nil, nil)

	result := server.Call(context.Background(), "sequentialthinking", map[string]interface{}{
		"thought":           "missing numbers",
		"nextThoughtNeeded": true,
	})
	assert.False(t, result.Success)
	assert.Equal(t, "VALIDATION_ERROR", result.ErrorCode)

	result = server.Call(context.Background(), "sequentialthinking", map[string]interface{}{
		"thought":           "zero",
		"thoughtNumber":     0,
		"totalThoughts":     1,
		"nextThoughtNeeded": true,
	})
	assert.False(t, result.Success)
	assert.Equal(t, "VALIDATION_ERROR", result.ErrorCode)
}
