package servers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"provider-host/internal/memory"

	"github.com/sirupsen/logrus"
)

// ErrUnknownProvider is wrapped by every *UnknownProviderError
var ErrUnknownProvider = errors.New("unknown provider")

// UnknownProviderError names a provider that is not in the catalog
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %q", e.Name)
}

func (e *UnknownProviderError) Unwrap() error {
	return ErrUnknownProvider
}

// ConfigError reports a provider that could not be built from the
// arguments and overrides it was given
type ConfigError struct {
	Provider string
	Key      string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Key, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func missingOverride(kind Kind, key string) *ConfigError {
	return &ConfigError{Provider: string(kind), Key: key, Message: "required override missing"}
}

// CacheObserver receives fetch cache lookups
type CacheObserver interface {
	ObserveCache(hit bool)
}

// Dependencies are the host resources providers are built from
type Dependencies struct {
	// Pool shares memory engines between providers and other callers
	Pool *memory.Pool
	// MemorySwitch gates the memory provider's operations
	MemorySwitch *memory.Switch
	// DefaultMemoryPath is used when no MEMORY_PATH override is given
	DefaultMemoryPath string
	HTTPClient        *http.Client
	ToolTimeout       time.Duration
	Observer          CallObserver
	CacheObserver     CacheObserver
	Logger            *logrus.Entry
}

func (d Dependencies) logger() *logrus.Entry {
	if d.Logger != nil {
		return d.Logger
	}
	return logrus.WithField("component", "servers")
}

func (d Dependencies) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Registry constructs providers from the closed catalog
type Registry struct {
	deps Dependencies
}

// NewRegistry creates a registry. A nil Pool gets a private pool.
func NewRegistry(deps Dependencies) *Registry {
	if deps.Pool == nil {
		deps.Pool = memory.NewPool(nil)
	}
	return &Registry{deps: deps}
}

// Create builds the provider called name. Args are handed to the provider
// untouched; missing required overrides fail with *ConfigError.
func (r *Registry) Create(ctx context.Context, name string, args []string, overrides map[string]string) (Server, error) {
	log := r.deps.logger().WithFields(logrus.Fields{
		"provider":  name,
		"args":      args,
		"overrides": RedactOverrides(overrides),
	})
	log.Info("Creating in-process provider")

	if overrides == nil {
		overrides = map[string]string{}
	}

	kind, ok := ParseKind(name)
	if !ok {
		err := &UnknownProviderError{Name: name}
		log.WithError(err).Warn("Provider construction failed")
		return nil, err
	}

	var (
		server Server
		err    error
	)
	switch kind {
	case KindMemory:
		server, err = newMemoryServer(ctx, r.deps, overrides)
	case KindSequentialThinking:
		server, err = newThinkingServer(r.deps)
	case KindSearch:
		server, err = newSearchServer(r.deps, overrides)
	case KindFetch:
		server, err = newFetchServer(r.deps, overrides)
	case KindFilesystem:
		server, err = newFilesystemServer(r.deps, args)
	case KindKnowledgeBase:
		server, err = newKnowledgeServer(r.deps, args, overrides)
	case KindCodeExecution:
		server, err = newCodeServer(r.deps)
	default:
		err = &UnknownProviderError{Name: name}
	}
	if err != nil {
		log.WithError(err).Warn("Provider construction failed")
		return nil, err
	}
	return server, nil
}

// RedactOverrides copies overrides with secret-looking values masked
func RedactOverrides(overrides map[string]string) map[string]string {
	redacted := make(map[string]string, len(overrides))
	for key, value := range overrides {
		if isSecretKey(key) {
			value = "****"
		}
		redacted[key] = value
	}
	return redacted
}

var secretMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD"}

func isSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range secretMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
