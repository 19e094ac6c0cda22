package storage

import (
	"context"
	"errors"

	"provider-host/internal/models"
)

// ErrNotFound is returned when a write targets a memory that does not exist
var ErrNotFound = errors.New("memory not found")

// MemoryRepository defines the durable operations behind the memory engine.
// Every method is a single transaction.
type MemoryRepository interface {
	// Create stores a new memory
	Create(ctx context.Context, item *models.MemoryItem) error

	// GetByID retrieves a memory by its ID, returning nil when absent
	GetByID(ctx context.Context, id string) (*models.MemoryItem, error)

	// Update loads a memory, applies mutate and writes the result back.
	// Returns ErrNotFound if the memory does not exist; nothing is written
	// when mutate fails.
	Update(ctx context.Context, id string, mutate func(item *models.MemoryItem) error) (*models.MemoryItem, error)

	// Delete removes a memory by ID
	Delete(ctx context.Context, id string) error

	// List returns one page of a user's memories ordered by creation time
	// and the total size of the filtered set, read from one snapshot.
	List(ctx context.Context, filter models.MemoryFilter) ([]*models.MemoryItem, int64, error)

	// DeleteByUser removes all memories for a user
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// ListUsers aggregates the distinct owners of stored memories
	ListUsers(ctx context.Context) ([]models.UserSummary, error)

	// GetStats returns memory usage statistics for a user
	GetStats(ctx context.Context, userID string) (*models.MemoryStats, error)
}

// Repository aggregates all repository interfaces
type Repository interface {
	Memory() MemoryRepository
	Close() error
}
