package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"provider-host/internal/storage"
	"provider-host/internal/storage/postgres"
	"provider-host/internal/storage/sqlite"

	"github.com/sirupsen/logrus"
)

// DatabaseFileName is used when a storage location names a directory
const DatabaseFileName = "memories.db"

// Opener opens the repository behind a resolved location
type Opener func(ctx context.Context, location string) (storage.Repository, error)

// IsPostgresURL reports whether location selects the PostgreSQL backend
func IsPostgresURL(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

// ResolveLocation turns a configured storage location into the key the
// pool opens. Directories, and paths without an extension, get
// DatabaseFileName appended and are created if missing.
func ResolveLocation(location string) (string, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return "", errors.New("storage location cannot be empty")
	case IsPostgresURL(location), location == ":memory:":
		return location, nil
	}

	path, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("resolve storage location: %w", err)
	}

	if info, err := os.Stat(path); (err == nil && info.IsDir()) || filepath.Ext(path) == "" {
		path = filepath.Join(path, DatabaseFileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create storage directory: %w", err)
	}
	return path, nil
}

// OpenRepository picks PostgreSQL for postgres URLs and SQLite otherwise
func OpenRepository(ctx context.Context, location string) (storage.Repository, error) {
	if IsPostgresURL(location) {
		return postgres.NewRepository(ctx, location)
	}
	return sqlite.NewRepository(location)
}

// Pool shares one engine per storage location across the process so every
// caller sees the same items and the same locks.
type Pool struct {
	mu      sync.Mutex
	open    Opener
	options []Option
	entries map[string]*poolEntry
	logger  *logrus.Entry
}

type poolEntry struct {
	engine *Engine
	repo   storage.Repository
	refs   int
}

// NewPool creates a pool that opens repositories with open. The options
// are applied to every engine it creates.
func NewPool(open Opener, opts ...Option) *Pool {
	if open == nil {
		open = OpenRepository
	}
	return &Pool{
		open:    open,
		options: opts,
		entries: make(map[string]*poolEntry),
		logger:  logrus.WithField("component", "memory_pool"),
	}
}

// Lease is a reference to a pooled engine. Release it when done.
type Lease struct {
	*Engine
	location string
	pool     *Pool
	entry    *poolEntry
	once     sync.Once
}

// Location returns the resolved storage location
func (l *Lease) Location() string {
	return l.location
}

// Release drops the reference; the last release closes the repository
func (l *Lease) Release() error {
	var err error
	l.once.Do(func() {
		err = l.pool.release(l.location, l.entry)
	})
	return err
}

// Acquire returns the engine for location, opening it on first use
func (p *Pool) Acquire(ctx context.Context, location string) (*Lease, error) {
	resolved, err := ResolveLocation(location)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[resolved]
	if !ok {
		repo, err := p.open(ctx, resolved)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		opts := append([]Option{WithLogger(p.logger.WithField("location", redactLocation(resolved)))}, p.options...)
		entry = &poolEntry{
			engine: NewEngine(repo.Memory(), opts...),
			repo:   repo,
		}
		p.entries[resolved] = entry
		p.logger.WithField("location", redactLocation(resolved)).Info("Memory store opened")
	}
	entry.refs++

	return &Lease{Engine: entry.engine, location: resolved, pool: p, entry: entry}, nil
}

// release drops one reference to entry. Leases that outlived a Close
// point at an entry the pool no longer holds and are ignored.
func (p *Pool) release(location string, entry *poolEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.entries[location]; !ok || current != entry {
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		return nil
	}
	delete(p.entries, location)
	p.logger.WithField("location", redactLocation(location)).Info("Memory store closed")
	return entry.repo.Close()
}

// Close closes every open repository regardless of outstanding leases
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for location, entry := range p.entries {
		if err := entry.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", redactLocation(location), err))
		}
		delete(p.entries, location)
	}
	return errors.Join(errs...)
}

// redactLocation hides the password of a database URL
func redactLocation(location string) string {
	if !IsPostgresURL(location) {
		return location
	}
	scheme, rest, _ := strings.Cut(location, "://")
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return location
	}
	user, _, _ := strings.Cut(rest[:at], ":")
	return scheme + "://" + user + ":****@" + rest[at+1:]
}
