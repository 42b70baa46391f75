// internal/browser/session/manager.go
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

// Manager hands out workers and tears all of them down at shutdown.
type Manager struct {
	launcher Launcher
	env      capabilities.Environment
	router   ConsoleRouter
	logger   *zap.Logger

	mu      sync.Mutex
	workers map[string]*Worker
	seq     atomic.Int64
}

// NewManager creates a manager. router may be nil, in which case console
// records of non-pollable drivers are dropped.
func NewManager(launcher Launcher, env capabilities.Environment, router ConsoleRouter, logger *zap.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		env:      env,
		router:   router,
		logger:   logger.Named("session_manager"),
		workers:  make(map[string]*Worker),
	}
}

// NewWorker registers a fresh worker.
func (m *Manager) NewWorker() *Worker {
	id := fmt.Sprintf("worker-%d", m.seq.Add(1))
	w := &Worker{
		id:       id,
		launcher: m.launcher,
		env:      m.env,
		router:   m.router,
		logger:   m.logger.Named(id),
	}
	w.onClose = func() {
		m.mu.Lock()
		delete(m.workers, id)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.workers[id] = w
	m.mu.Unlock()
	return w
}

// Workers is the number of live workers.
func (m *Manager) Workers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Shutdown releases every worker's session and service in parallel and
// forgets them.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*Worker)
	m.mu.Unlock()

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			w.ReleaseAll(ctx)
			return nil
		})
	}
	_ = g.Wait()
	m.logger.Info("Session manager shut down.", zap.Int("workers", len(workers)))
}
