package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/hostcall"
)

// Manager hands each worker its own Context. Contexts are built lazily on
// the worker's first request; a construction failure is remembered and
// every later request on that worker fails with ErrEngineUnavailable.
type Manager struct {
	factory core.RuntimeFactory
	cfg     core.EngineConfig
	bridge  *hostcall.Bridge
	logger  *slog.Logger

	mu     sync.Mutex
	slots  map[int]*slot
	closed bool

	built atomic.Uint64
	live  atomic.Int64
}

// slot is only touched by its owning worker once it exists.
type slot struct {
	ctx *Context
	err error
}

// NewManager returns a manager that builds contexts with factory.
func NewManager(factory core.RuntimeFactory, cfg core.EngineConfig, bridge *hostcall.Bridge, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory: factory,
		cfg:     cfg.WithDefaults(),
		bridge:  bridge,
		logger:  logger,
		slots:   make(map[int]*slot),
	}
}

// Get returns the worker's context, building it if this is the worker's
// first request or the previous context was retired. It must only be
// called from the worker goroutine identified by worker.
func (m *Manager) Get(worker int) (*Context, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, core.ErrClosed
	}
	s := m.slots[worker]
	if s == nil {
		s = &slot{}
		m.slots[worker] = s
	}
	m.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.ctx != nil && s.ctx.retired() {
		m.logger.Debug("recycling engine context", "worker", worker, "uses", s.ctx.uses, "broken", s.ctx.broken)
		s.ctx.close()
		s.ctx = nil
		m.live.Add(-1)
	}
	if s.ctx == nil {
		c, err := newContext(worker, m.factory, m.cfg, m.bridge, m.logger)
		if err != nil {
			s.err = fmt.Errorf("%w: %v", core.ErrEngineUnavailable, err)
			m.logger.Error("engine construction failed", "worker", worker, "error", err)
			return nil, s.err
		}
		s.ctx = c
		m.built.Add(1)
		m.live.Add(1)
	}
	return s.ctx, nil
}

// Built returns how many contexts have been constructed, including
// replacements for retired ones.
func (m *Manager) Built() uint64 { return m.built.Load() }

// Live returns how many contexts are currently open.
func (m *Manager) Live() int64 { return m.live.Load() }

// Close releases every context. Workers must have stopped before Close is
// called.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, s := range m.slots {
		if s.ctx != nil {
			s.ctx.close()
			s.ctx = nil
			m.live.Add(-1)
		}
	}
}
