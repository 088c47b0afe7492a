package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/sre-assistant/internal/logging"
)

// Manager starts components in registration order and stops them in reverse.
// A component may only depend on components registered before it, so
// registration order is always a valid start order.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	registered      map[Component]bool
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a manager with a 10 second shutdown timeout.
func NewManager() *Manager {
	return &Manager{
		registered:      make(map[Component]bool),
		shutdownTimeout: 10 * time.Second,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// SetShutdownTimeout changes the overall budget used by Stop.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}

// Register adds a component. Every dependency must already be registered.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	if component == nil {
		return fmt.Errorf("component must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.started) > 0 {
		return fmt.Errorf("cannot register %s after start", component.Name())
	}
	if m.registered[component] {
		return fmt.Errorf("component %s already registered", component.Name())
	}
	for _, dep := range dependsOn {
		if !m.registered[dep] {
			return fmt.Errorf("component %s depends on unregistered component %s", component.Name(), dep.Name())
		}
	}

	m.components = append(m.components, component)
	m.registered[component] = true
	return nil
}

// Start starts every component. If one fails, the ones already started are
// stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.components {
		if err := ctx.Err(); err != nil {
			m.rollback()
			return err
		}
		start := time.Now()
		if err := c.Start(ctx); err != nil {
			m.logger.Error("failed to start %s: %v", c.Name(), err)
			m.rollback()
			return fmt.Errorf("failed to start %s: %w", c.Name(), err)
		}
		m.started = append(m.started, c)
		m.logger.DebugWithFields("component started",
			logging.Field("component", c.Name()),
			logging.Field("duration_ms", time.Since(start).Milliseconds()),
		)
	}
	return nil
}

func (m *Manager) rollback() {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()
	_ = m.stopStarted(ctx)
}

// Stop stops started components in reverse order. Every component is asked to
// stop even if an earlier one fails; the errors are joined.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
	defer cancel()
	return m.stopStarted(ctx)
}

func (m *Manager) stopStarted(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		c := m.started[i]
		if err := c.Stop(ctx); err != nil {
			m.logger.Warn("failed to stop %s: %v", c.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

// Running reports whether component has been started and not yet stopped.
func (m *Manager) Running(component Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.started {
		if c == component {
			return true
		}
	}
	return false
}
