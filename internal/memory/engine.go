package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"provider-host/internal/models"
	"provider-host/internal/storage"

	"github.com/sirupsen/logrus"
)

// DefaultUserID is the reserved namespace. It is always listed and can
// never be deleted.
const DefaultUserID = "default-user"

// Observer receives one call per finished engine operation
type Observer interface {
	ObserveMemoryOp(op, outcome string, elapsed time.Duration)
}

// Engine owns every read and write of memory items. Operations on the
// same id, and bulk operations on the same namespace, are serialized.
type Engine struct {
	repo     storage.MemoryRepository
	locks    *keyedMutex
	now      func() time.Time
	logger   *logrus.Entry
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the entry the engine logs through
func WithLogger(logger *logrus.Entry) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithObserver reports operation outcomes, usually to metrics
func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observer = observer }
}

// NewEngine creates an engine over repo
func NewEngine(repo storage.MemoryRepository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: logrus.WithField("component", "memory"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add stores a new memory in userID's namespace. An empty userID means
// the default namespace.
func (e *Engine) Add(ctx context.Context, content string, metadata map[string]interface{}, userID string) (item *models.MemoryItem, err error) {
	const op = "add"
	defer e.observe(op, time.Now(), &err)

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalidInput(op, "memory content cannot be empty")
	}
	userID = normalizeUser(userID)

	now := e.timestamp()
	item = &models.MemoryItem{
		UserID:    userID,
		Memory:    content,
		Metadata:  models.JSON(metadata).Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.Create(ctx, item); err != nil {
		return nil, storageFailure(op, "", err)
	}

	e.logger.WithFields(logrus.Fields{
		"memory_id": item.ID,
		"user_id":   userID,
	}).Debug("Memory added")
	return item, nil
}

// Get returns the memory with the given id
func (e *Engine) Get(ctx context.Context, id string) (item *models.MemoryItem, err error) {
	const op = "get"
	defer e.observe(op, time.Now(), &err)

	item, err = e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageFailure(op, id, err)
	}
	if item == nil {
		return nil, newError(op, ErrNotFound, id, nil)
	}
	return item, nil
}

// Update replaces the content when content is non-nil and shallow-merges
// metadata into the stored metadata. A nil metadata value removes the key.
func (e *Engine) Update(ctx context.Context, id string, content *string, metadata map[string]interface{}) (item *models.MemoryItem, err error) {
	const op = "update"
	defer e.observe(op, time.Now(), &err)

	var newContent string
	if content != nil {
		newContent = strings.TrimSpace(*content)
		if newContent == "" {
			return nil, invalidInput(op, "memory content cannot be empty")
		}
	}

	unlock := e.locks.Lock("id:" + id)
	defer unlock()

	item, err = e.repo.Update(ctx, id, func(m *models.MemoryItem) error {
		if content != nil {
			m.Memory = newContent
		}
		if len(metadata) > 0 {
			merged := m.Metadata.Clone()
			for key, value := range metadata {
				if value == nil {
					delete(merged, key)
					continue
				}
				merged[key] = value
			}
			m.Metadata = merged
		}

		next := e.timestamp()
		if !next.After(m.UpdatedAt) {
			next = m.UpdatedAt.Add(time.Microsecond)
		}
		m.UpdatedAt = next
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(op, ErrNotFound, id, nil)
		}
		return nil, storageFailure(op, id, err)
	}
	return item, nil
}

// Delete removes one memory
func (e *Engine) Delete(ctx context.Context, id string) (err error) {
	const op = "delete"
	defer e.observe(op, time.Now(), &err)

	unlock := e.locks.Lock("id:" + id)
	defer unlock()

	if err := e.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(op, ErrNotFound, id, nil)
		}
		return storageFailure(op, id, err)
	}

	e.logger.WithField("memory_id", id).Debug("Memory deleted")
	return nil
}

// List returns one page of userID's memories, oldest first. A limit of
// zero or less returns everything from offset on.
func (e *Engine) List(ctx context.Context, userID string, limit, offset int) (*models.ListResult, error) {
	return e.find(ctx, "list", userID, "", limit, offset)
}

// Search is List restricted to memories containing query, ignoring case.
// The query is matched as given, spaces included; a blank query behaves
// like List.
func (e *Engine) Search(ctx context.Context, userID, query string, limit, offset int) (*models.ListResult, error) {
	if strings.TrimSpace(query) == "" {
		query = ""
	}
	return e.find(ctx, "search", userID, query, limit, offset)
}

func (e *Engine) find(ctx context.Context, op, userID, query string, limit, offset int) (result *models.ListResult, err error) {
	defer e.observe(op, time.Now(), &err)

	if offset < 0 {
		return nil, invalidInput(op, "offset cannot be negative")
	}

	items, total, err := e.repo.List(ctx, models.MemoryFilter{
		UserID: normalizeUser(userID),
		Query:  query,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, storageFailure(op, "", err)
	}
	return &models.ListResult{Results: items, Total: total}, nil
}

// ListUsers returns every namespace that owns memories plus the default one
func (e *Engine) ListUsers(ctx context.Context) (users []models.UserSummary, err error) {
	const op = "list_users"
	defer e.observe(op, time.Now(), &err)

	users, err = e.repo.ListUsers(ctx)
	if err != nil {
		return nil, storageFailure(op, "", err)
	}

	for _, u := range users {
		if u.UserID == DefaultUserID {
			return users, nil
		}
	}
	users = append(users, models.UserSummary{UserID: DefaultUserID})
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].UserID == DefaultUserID {
			return true
		}
		if users[j].UserID == DefaultUserID {
			return false
		}
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}

// ResetUser deletes all of userID's memories and returns how many were
// removed. Resetting an empty namespace succeeds.
func (e *Engine) ResetUser(ctx context.Context, userID string) (removed int64, err error) {
	const op = "reset_user"
	defer e.observe(op, time.Now(), &err)

	userID = normalizeUser(userID)
	unlock := e.locks.Lock("user:" + userID)
	defer unlock()

	removed, err = e.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, storageFailure(op, userID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"removed": removed,
	}).Info("User memories reset")
	return removed, nil
}

// DeleteUser removes a namespace and all of its memories. The default
// namespace is rejected before storage is touched.
func (e *Engine) DeleteUser(ctx context.Context, userID string) (err error) {
	const op = "delete_user"
	defer e.observe(op, time.Now(), &err)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return invalidInput(op, "user id cannot be empty")
	}
	if userID == DefaultUserID {
		return newError(op, ErrProtectedNamespace, userID, nil)
	}

	unlock := e.locks.Lock("user:" + userID)
	defer unlock()

	removed, err := e.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return storageFailure(op, userID, err)
	}
	if removed == 0 {
		return newError(op, ErrNotFound, userID, nil)
	}

	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"removed": removed,
	}).Info("User deleted")
	return nil
}

// Stats summarizes one namespace
func (e *Engine) Stats(ctx context.Context, userID string) (stats *models.MemoryStats, err error) {
	const op = "stats"
	defer e.observe(op, time.Now(), &err)

	stats, err = e.repo.GetStats(ctx, normalizeUser(userID))
	if err != nil {
		return nil, storageFailure(op, userID, err)
	}
	return stats, nil
}

// timestamp is truncated to the precision every backend can store
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	if e.observer == nil {
		return
	}
	e.observer.ObserveMemoryOp(op, Outcome(*err), time.Since(start))
}

// Outcome labels an engine result for metrics and logs
func Outcome(err error) string {
	switch KindOf(err) {
	case nil:
		if err != nil {
			return "error"
		}
		return "ok"
	case ErrInvalidInput:
		return "invalid_input"
	case ErrNotFound:
		return "not_found"
	case ErrProtectedNamespace:
		return "protected_namespace"
	default:
		return "storage_failure"
	}
}

func normalizeUser(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DefaultUserID
	}
	return userID
}
