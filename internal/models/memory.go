package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemoryItem is a single free-text knowledge entry owned by one user namespace
type MemoryItem struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string    `json:"userId" gorm:"type:varchar(64);not null;index:idx_memory_user_created,priority:1"`
	Memory    string    `json:"memory" gorm:"type:text;not null"`
	Metadata  JSON      `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime:false;index:idx_memory_user_created,priority:2"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime:false"`
}

// TableName pins the table name used by every backend
func (MemoryItem) TableName() string {
	return "memory_items"
}

// BeforeCreate hook to generate UUID if not provided
func (m *MemoryItem) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// MemoryFilter selects a page of one user's memories.
// Limit <= 0 means no limit.
type MemoryFilter struct {
	UserID string
	Query  string
	Limit  int
	Offset int
}

// ListResult is a page of memories together with the size of the whole
// filtered set it was cut from.
type ListResult struct {
	Results []*MemoryItem `json:"results"`
	Total   int64         `json:"total"`
}

// UserSummary describes one user namespace
type UserSummary struct {
	UserID       string     `json:"userId"`
	MemoryCount  int64      `json:"memoryCount"`
	LastMemoryAt *time.Time `json:"lastMemoryAt,omitempty"`
}

// MemoryStats represents memory usage statistics for one user
type MemoryStats struct {
	UserID        string     `json:"userId"`
	TotalMemories int64      `json:"totalMemories"`
	OldestMemory  *time.Time `json:"oldestMemory,omitempty"`
	NewestMemory  *time.Time `json:"newestMemory,omitempty"`
}

// AddMemoryRequest is the body for adding a memory through the settings API
type AddMemoryRequest struct {
	Memory   string                 `json:"memory" validate:"required"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateMemoryRequest is the body for updating a memory. Metadata is
// shallow-merged into the stored metadata.
type UpdateMemoryRequest struct {
	Memory   *string                `json:"memory,omitempty" validate:"omitempty,min=1"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddUserRequest creates a new user namespace
type AddUserRequest struct {
	UserID string `json:"userId" validate:"required,userid"`
}

// SetCurrentUserRequest switches a session's active user
type SetCurrentUserRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}
