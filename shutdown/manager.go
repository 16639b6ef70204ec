package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"smartnotes/logging"
)

// Manager coordinates graceful shutdown: it owns the root context that
// generation runs derive from, drains in-flight operations, and executes
// registered cleanup in priority order.
//
// Usage:
//
//	manager := shutdown.NewManager(log)
//	manager.Register("database", 30, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	manager.Start()
//
//	<-manager.Context().Done()
//	manager.Shutdown()
type Manager struct {
	log      *logging.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter

	sigChan chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout. Default is 60 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// NewManager creates a Manager. A second OS signal forces immediate exit.
func NewManager(log *logging.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		log:      log,
		timeout:  60 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.log.Warn("Received second signal, forcing immediate shutdown")
		os.Exit(1)
	})

	return m
}

// Context returns the context cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priority values execute first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.log.Debugw("Registered shutdown handler", "name", name, "priority", priority)
}

// Start begins handling SIGINT and SIGTERM. The first signal cancels the
// managed context; the second forces exit. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			if m.signals.Increment() == 1 {
				m.log.Infow("Received shutdown signal, initiating graceful shutdown",
					"signal", sig.String())
				m.cancel()
			}
		}
	}()

	m.log.Info("Shutdown manager started, listening for signals")
}

// Shutdown drains in-flight operations (bounded by the manager timeout)
// and runs registered cleanup. Idempotent; later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	startTime := time.Now()
	m.log.Infow("Initiating graceful shutdown",
		"timeout", m.timeout,
		"registered_handlers", m.registry.Count())

	m.tracker.Close()

	if active := m.tracker.ActiveCount(); active > 0 {
		m.log.Infow("Waiting for in-flight operations", "active_count", active)
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.log.Warnw("Timeout waiting for in-flight operations",
			"waited", time.Since(startTime),
			"remaining_ops", m.tracker.ActiveCount())
	}

	remaining := m.timeout - time.Since(startTime)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.log.Infow("Executing cleanup functions", "handlers", m.registry.Names())
	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.log.Errorw("Cleanup function failed", "error", err)
	}

	signal.Stop(m.sigChan)
	close(m.sigChan)

	duration := time.Since(startTime)
	if len(errs) > 0 {
		m.log.Errorw("Shutdown completed with errors",
			"duration", duration, "error_count", len(errs))
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}
	m.log.Infow("Graceful shutdown completed", "duration", duration)
	return nil
}

// Cancel cancels the managed context, beginning shutdown as if a signal
// had arrived. Callers still run Shutdown to drain and clean up.
func (m *Manager) Cancel() {
	m.cancel()
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn while tracked as in-flight. Returns
// ErrTrackerClosed without running fn if shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.log.Debugw("Operation rejected, system shutting down", "operation", name)
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return context.Canceled
	default:
	}

	return fn(ctx)
}

// ActiveOperations returns the count of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.tracker.IsClosed()
}
