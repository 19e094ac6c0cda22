package servers

import (
	"context"
	"errors"
	"sync"
	"time"

	"provider-host/internal/tools"

	"github.com/sirupsen/logrus"
)

// Server is a running provider instance
type Server interface {
	// Name returns the catalog name the server was created from
	Name() string

	// Tools describes the operations the server exposes
	Tools() []tools.Schema

	// Available reports whether tool can be called right now
	Available(ctx context.Context, tool string) bool

	// Call runs one operation. Failures are reported in the result.
	Call(ctx context.Context, tool string, input map[string]interface{}) *tools.Result

	// Close releases the server's resources
	Close() error
}

// CallObserver receives one call per finished operation
type CallObserver interface {
	ObserveToolCall(provider, tool, code string, elapsed time.Duration)
}

// toolServer is the Server every provider is built on: a tool registry,
// an executor and a list of cleanup funcs.
type toolServer struct {
	name     string
	registry *tools.Registry
	executor *tools.Executor
	observer CallObserver
	logger   *logrus.Entry

	closeOnce sync.Once
	closers   []func() error
	closeErr  error
}

func newToolServer(name string, deps Dependencies, ts ...tools.Tool) (*toolServer, error) {
	registry, err := tools.NewRegistry(ts...)
	if err != nil {
		return nil, err
	}
	return &toolServer{
		name:     name,
		registry: registry,
		executor: tools.NewExecutor(name, registry, deps.ToolTimeout),
		observer: deps.Observer,
		logger:   deps.logger().WithField("provider", name),
	}, nil
}

func (s *toolServer) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *toolServer) Name() string {
	return s.name
}

func (s *toolServer) Tools() []tools.Schema {
	return s.registry.Schemas()
}

func (s *toolServer) Available(ctx context.Context, tool string) bool {
	t, ok := s.registry.Get(tool)
	return ok && t.IsAvailable(ctx)
}

func (s *toolServer) Call(ctx context.Context, tool string, input map[string]interface{}) *tools.Result {
	result := s.executor.Execute(ctx, tool, input)

	if s.observer != nil {
		s.observer.ObserveToolCall(s.name, tool, result.ErrorCode, result.Duration)
	}
	if !result.Success {
		s.logger.WithFields(logrus.Fields{
			"tool":       tool,
			"error_code": result.ErrorCode,
		}).Debug(result.Error)
	}
	return result
}

func (s *toolServer) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
