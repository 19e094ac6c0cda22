package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"provider-host/internal/models"
	"provider-host/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memoryColumns = `id, user_id, memory, metadata, created_at, updated_at`

// memoryRepository implements storage.MemoryRepository on a pgx pool
type memoryRepository struct {
	pool *pgxpool.Pool
}

// NewMemoryRepository creates a PostgreSQL-backed memory repository
func NewMemoryRepository(pool *pgxpool.Pool) storage.MemoryRepository {
	return &memoryRepository{pool: pool}
}

func (r *memoryRepository) Create(ctx context.Context, item *models.MemoryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO memory_items (`+memoryColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID,
		item.UserID,
		item.Memory,
		metadata,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id string) (*models.MemoryItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memory_items WHERE id=$1`, id)
	item, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return item, nil
}

func (r *memoryRepository) Update(ctx context.Context, id string, mutate func(item *models.MemoryItem) error) (*models.MemoryItem, error) {
	var updated *models.MemoryItem
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memory_items WHERE id=$1 FOR UPDATE`, id)
		item, err := scanMemory(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}

		if err := mutate(item); err != nil {
			return err
		}

		metadata, err := encodeMetadata(item.Metadata)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE memory_items SET memory=$2, metadata=$3, updated_at=$4 WHERE id=$1`,
			id, item.Memory, metadata, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update memory: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memory_items WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List reads the count and the page from one repeatable-read snapshot
func (r *memoryRepository) List(ctx context.Context, filter models.MemoryFilter) ([]*models.MemoryItem, int64, error) {
	const where = `user_id=$1 AND ($2 = '' OR strpos(lower(memory), lower($2)) > 0)`

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	offset := 0
	if filter.Offset > 0 {
		offset = filter.Offset
	}

	var (
		items []*models.MemoryItem
		total int64
	)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM memory_items WHERE `+where, filter.UserID, filter.Query).Scan(&total); err != nil {
			return fmt.Errorf("count memories: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT `+memoryColumns+` FROM memory_items WHERE `+where+`
			 ORDER BY created_at ASC, id ASC LIMIT $3 OFFSET $4`,
			filter.UserID, filter.Query, limit, offset,
		)
		if err != nil {
			return fmt.Errorf("query memories: %w", err)
		}
		defer rows.Close()

		items = make([]*models.MemoryItem, 0)
		for rows.Next() {
			item, err := scanMemory(rows)
			if err != nil {
				return fmt.Errorf("scan memory row: %w", err)
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate memory rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *memoryRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memory_items WHERE user_id=$1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user memories: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *memoryRepository) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, COUNT(*), MAX(created_at) FROM memory_items GROUP BY user_id ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]models.UserSummary, 0)
	for rows.Next() {
		var (
			summary models.UserSummary
			last    time.Time
		)
		if err := rows.Scan(&summary.UserID, &summary.MemoryCount, &last); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		last = last.UTC()
		summary.LastMemoryAt = &last
		users = append(users, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

func (r *memoryRepository) GetStats(ctx context.Context, userID string) (*models.MemoryStats, error) {
	stats := &models.MemoryStats{UserID: userID}
	var oldest, newest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM memory_items WHERE user_id=$1`,
		userID,
	).Scan(&stats.TotalMemories, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	stats.OldestMemory = utcPtr(oldest)
	stats.NewestMemory = utcPtr(newest)
	return stats, nil
}

func scanMemory(row pgx.Row) (*models.MemoryItem, error) {
	var (
		item     models.MemoryItem
		metadata []byte
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.Memory, &metadata, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := item.Metadata.Scan(metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func encodeMetadata(metadata models.JSON) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
