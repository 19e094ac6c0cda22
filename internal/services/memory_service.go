package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"provider-host/internal/config"
	"provider-host/internal/memory"
	"provider-host/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// InitialMemoryContent seeds a namespace created with AddUser
const InitialMemoryContent = "Initial memory for a new user"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// NewValidator returns a validator that knows the "userid" rule
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return userIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// MemoryEngine is the part of the memory engine the facade uses
type MemoryEngine interface {
	Add(ctx context.Context, content string, metadata map[string]interface{}, userID string) (*models.MemoryItem, error)
	Get(ctx context.Context, id string) (*models.MemoryItem, error)
	Update(ctx context.Context, id string, content *string, metadata map[string]interface{}) (*models.MemoryItem, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string, limit, offset int) (*models.ListResult, error)
	Search(ctx context.Context, userID, query string, limit, offset int) (*models.ListResult, error)
	ListUsers(ctx context.Context) ([]models.UserSummary, error)
	ResetUser(ctx context.Context, userID string) (int64, error)
	DeleteUser(ctx context.Context, userID string) error
	Stats(ctx context.Context, userID string) (*models.MemoryStats, error)
}

// ConfigSource reloads the host configuration
type ConfigSource interface {
	Load() (*config.Config, error)
}

// MemoryService is the facade the settings surface talks to. It shares
// its engine with the memory provider.
type MemoryService struct {
	engine    MemoryEngine
	enabled   *memory.Switch
	source    ConfigSource
	validator *validator.Validate
	logger    *logrus.Entry

	// location the engine was opened with; fixed for the process lifetime
	path string

	// serializes the existence check and the seeding write of AddUser
	addUserMu sync.Mutex
}

// NewMemoryService creates the facade. path is the storage location the
// engine was opened with. source may be nil, in which case UpdateConfig
// fails.
func NewMemoryService(engine MemoryEngine, enabled *memory.Switch, source ConfigSource, path string, logger *logrus.Entry) *MemoryService {
	if logger == nil {
		logger = logrus.WithField("component", "memory_service")
	}
	return &MemoryService{
		engine:    engine,
		enabled:   enabled,
		source:    source,
		validator: NewValidator(),
		logger:    logger,
		path:      path,
	}
}

// NewSession returns a session whose current user is the default one
func (s *MemoryService) NewSession() *Session {
	return &Session{
		id:          uuid.NewString(),
		service:     s,
		currentUser: memory.DefaultUserID,
	}
}

// Enabled reports the global memory switch
func (s *MemoryService) Enabled() bool {
	return s.enabled.Enabled()
}

// UpdateConfig reloads the configuration and applies the global enable
// flag. Open engines are kept; a changed storage path only takes effect
// after a restart.
func (s *MemoryService) UpdateConfig(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return s.Enabled(), err
	}
	if s.source == nil {
		return s.Enabled(), errors.New("no configuration source")
	}

	cfg, err := s.source.Load()
	if err != nil {
		return s.Enabled(), fmt.Errorf("reload config: %w", err)
	}

	changed := s.enabled.Set(cfg.Memory.Enabled)
	log := s.logger.WithFields(logrus.Fields{
		"enabled": cfg.Memory.Enabled,
		"changed": changed,
	})

	if s.path != "" && s.path != cfg.Memory.Path {
		log = log.WithField("path", cfg.Memory.Path)
		log.Warn("Memory path changed; restart to use the new location")
	}

	log.Info("Memory configuration reloaded")
	return cfg.Memory.Enabled, nil
}

// Stats summarizes a namespace
func (s *MemoryService) Stats(ctx context.Context, userID string) (*models.MemoryStats, error) {
	return s.engine.Stats(ctx, userID)
}

// Session is one consumer's view of the store. Operations that take no
// user id act on the session's current user.
type Session struct {
	id      string
	service *MemoryService

	mu          sync.RWMutex
	currentUser string
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// CurrentUser returns the active namespace
func (s *Session) CurrentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUser
}

// SetCurrentUser switches the active namespace. An empty id selects the
// default namespace.
func (s *Session) SetCurrentUser(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = memory.DefaultUserID
	}
	if len(userID) > 64 {
		return &memory.Error{Op: "set_current_user", Kind: memory.ErrInvalidInput, Err: errors.New("user id is longer than 64 characters")}
	}

	s.mu.Lock()
	s.currentUser = userID
	s.mu.Unlock()
	return nil
}

// List returns a page of the current user's memories
func (s *Session) List(ctx context.Context, limit, offset int) (*models.ListResult, error) {
	return s.service.engine.List(ctx, s.CurrentUser(), limit, offset)
}

// Search returns a page of the current user's memories containing query
func (s *Session) Search(ctx context.Context, query string, limit, offset int) (*models.ListResult, error) {
	return s.service.engine.Search(ctx, s.CurrentUser(), query, limit, offset)
}

// Add stores a memory for the current user
func (s *Session) Add(ctx context.Context, content string, metadata map[string]interface{}) (*models.MemoryItem, error) {
	return s.service.engine.Add(ctx, content, metadata, s.CurrentUser())
}

// Get returns one memory
func (s *Session) Get(ctx context.Context, id string) (*models.MemoryItem, error) {
	return s.service.engine.Get(ctx, id)
}

// Update changes a memory's content and merges its metadata
func (s *Session) Update(ctx context.Context, id string, content *string, metadata map[string]interface{}) (*models.MemoryItem, error) {
	return s.service.engine.Update(ctx, id, content, metadata)
}

// Delete removes one memory
func (s *Session) Delete(ctx context.Context, id string) error {
	return s.service.engine.Delete(ctx, id)
}

// DeleteAllMemoriesForUser empties a namespace, the current one when
// userID is empty, and reports how many memories were removed
func (s *Session) DeleteAllMemoriesForUser(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		userID = s.CurrentUser()
	}
	return s.service.engine.ResetUser(ctx, userID)
}

// DeleteUser removes a namespace. A session whose current user was
// deleted falls back to the default namespace.
func (s *Session) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if err := s.service.engine.DeleteUser(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.currentUser == userID {
		s.currentUser = memory.DefaultUserID
	}
	s.mu.Unlock()
	return nil
}

// GetUsersList returns every namespace, the default one first
func (s *Session) GetUsersList(ctx context.Context) ([]models.UserSummary, error) {
	return s.service.engine.ListUsers(ctx)
}

// AddUser creates a namespace by storing an initial memory in it and
// makes it the session's current user
func (s *Session) AddUser(ctx context.Context, userID string) (*models.MemoryItem, error) {
	const op = "add_user"
	userID = strings.TrimSpace(userID)

	if err := s.service.validator.Var(userID, "required,userid"); err != nil {
		return nil, &memory.Error{Op: op, Kind: memory.ErrInvalidInput, ID: userID,
			Err: errors.New("user id must be 1-50 letters, digits, '_' or '-'")}
	}
	if userID == memory.DefaultUserID {
		return nil, &memory.Error{Op: op, Kind: memory.ErrProtectedNamespace, ID: userID}
	}

	s.service.addUserMu.Lock()
	defer s.service.addUserMu.Unlock()

	users, err := s.service.engine.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if user.UserID == userID {
			return nil, &memory.Error{Op: op, Kind: memory.ErrInvalidInput, ID: userID, Err: errors.New("user already exists")}
		}
	}

	item, err := s.service.engine.Add(ctx, InitialMemoryContent, map[string]interface{}{"userId": userID}, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.currentUser = userID
	s.mu.Unlock()

	s.service.logger.WithField("user_id", userID).Info("User created")
	return item, nil
}

// SessionStore keeps facade sessions addressable by id
type SessionStore struct {
	service *MemoryService

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store backed by service
func NewSessionStore(service *MemoryService) *SessionStore {
	return &SessionStore{
		service:  service,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session
func (st *SessionStore) Create() *Session {
	session := st.service.NewSession()
	st.mu.Lock()
	st.sessions[session.id] = session
	st.mu.Unlock()
	return session
}

// Get looks up a session
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	session, ok := st.sessions[id]
	st.mu.RUnlock()
	return session, ok
}

// Delete drops a session and reports whether it existed
func (st *SessionStore) Delete(id string) bool {
	st.mu.Lock()
	_, existed := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	return existed
}
