package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"provider-host/internal/models"
	"provider-host/internal/storage"

	"gorm.io/gorm"
)

// memoryRepository implements storage.MemoryRepository using GORM
type memoryRepository struct {
	db *gorm.DB
}

// NewMemoryRepository creates a new GORM-based memory repository
func NewMemoryRepository(db *gorm.DB) storage.MemoryRepository {
	return &memoryRepository{db: db}
}

// Create stores a new memory
func (r *memoryRepository) Create(ctx context.Context, item *models.MemoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// GetByID retrieves a memory by its ID
func (r *memoryRepository) GetByID(ctx context.Context, id string) (*models.MemoryItem, error) {
	var item models.MemoryItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// Update applies mutate to a memory inside one transaction
func (r *memoryRepository) Update(ctx context.Context, id string, mutate func(item *models.MemoryItem) error) (*models.MemoryItem, error) {
	var updated models.MemoryItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		if err := mutate(&updated); err != nil {
			return err
		}

		result := tx.Model(&models.MemoryItem{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"memory":     updated.Memory,
				"metadata":   updated.Metadata,
				"updated_at": updated.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a memory by ID
func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.MemoryItem{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// List returns a page of memories and the filtered total from one transaction
func (r *memoryRepository) List(ctx context.Context, filter models.MemoryFilter) ([]*models.MemoryItem, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", filter.UserID)
		if filter.Query != "" {
			db = db.Where(foldFunction+"(memory) LIKE ? ESCAPE '\\'", likePattern(filter.Query))
		}
		return db
	}

	var items []*models.MemoryItem
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MemoryItem{}).Scopes(scope).Count(&total).Error; err != nil {
			return err
		}

		query := tx.Model(&models.MemoryItem{}).Scopes(scope).Order("created_at ASC, id ASC")
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
		return query.Find(&items).Error
	})
	if err != nil {
		return nil, 0, err
	}

	if items == nil {
		items = []*models.MemoryItem{}
	}
	return items, total, nil
}

// DeleteByUser removes all memories for a user
func (r *memoryRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.MemoryItem{})
	return result.RowsAffected, result.Error
}

// ListUsers aggregates memory counts per user
func (r *memoryRepository) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	type userRow struct {
		UserID       string
		MemoryCount  int64
		LastMemoryAt sql.NullString
	}

	var rows []userRow
	err := r.db.WithContext(ctx).Model(&models.MemoryItem{}).
		Select("user_id, COUNT(*) AS memory_count, MAX(created_at) AS last_memory_at").
		Group("user_id").
		Order("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	users := make([]models.UserSummary, 0, len(rows))
	for _, row := range rows {
		users = append(users, models.UserSummary{
			UserID:       row.UserID,
			MemoryCount:  row.MemoryCount,
			LastMemoryAt: parseTimestamp(row.LastMemoryAt),
		})
	}
	return users, nil
}

// GetStats returns memory usage statistics for a user
func (r *memoryRepository) GetStats(ctx context.Context, userID string) (*models.MemoryStats, error) {
	var row struct {
		Total  int64
		Oldest sql.NullString
		Newest sql.NullString
	}

	err := r.db.WithContext(ctx).Model(&models.MemoryItem{}).
		Select("COUNT(*) AS total, MIN(created_at) AS oldest, MAX(created_at) AS newest").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &models.MemoryStats{
		UserID:        userID,
		TotalMemories: row.Total,
		OldestMemory:  parseTimestamp(row.Oldest),
		NewestMemory:  parseTimestamp(row.Newest),
	}, nil
}

// likePattern folds query the way foldFunction folds the column and
// escapes LIKE wildcards
func likePattern(query string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(strings.ToLower(query)) + "%"
}

// Aggregates lose the column's declared type, so SQLite hands timestamps
// back as text in the layouts the driver writes.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

func parseTimestamp(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value.String); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
