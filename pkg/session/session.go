// Package session models the audio session AirNFC borrows from the
// platform: it is activated before the sound card is opened and may be
// interrupted at any time by something outside the process.
package session

import (
	"log/slog"
	"sync/atomic"

	"AirNFC/internal/log"
	"AirNFC/pkg/airerr"
	"AirNFC/pkg/async"
)

// Listener is notified on the owner executor.
type Listener interface {
	SessionWasInterrupted()
}

type Session interface {
	Start() error
	Stop()
	Running() bool
	SetListener(l Listener)
}

// Hooks let a platform plug its own activation into a Manager. Both are
// optional and run on the owner.
type Hooks struct {
	Activate   func() error
	Deactivate func()
}

// Manager is the Session used on platforms without a session service of
// their own. Interrupt may be called from any goroutine, typically from a
// device's interrupt handler.
type Manager struct {
	exec  async.Executor
	hooks Hooks
	log   *slog.Logger

	running    bool
	listener   Listener
	generation atomic.Uint64
	interrupts atomic.Uint64
}

func NewManager(exec async.Executor, hooks Hooks) *Manager {
	return &Manager{
		exec:  exec,
		hooks: hooks,
		log:   log.Component("session"),
	}
}

func (m *Manager) SetListener(l Listener) {
	m.listener = l
}

func (m *Manager) Running() bool {
	return m.running
}

// Start activates the session. Starting a running session is a no-op.
func (m *Manager) Start() error {
	if m.running {
		return nil
	}
	if m.hooks.Activate != nil {
		if err := m.hooks.Activate(); err != nil {
			m.log.Warn("failed to activate", "error", err)
			return airerr.UnableToStart(err)
		}
	}
	m.generation.Add(1)
	m.running = true
	m.log.Debug("activated")
	return nil
}

// Stop deactivates the session. A pending interruption is dropped.
func (m *Manager) Stop() {
	if !m.running {
		return
	}
	m.running = false
	m.generation.Add(1)
	if m.hooks.Deactivate != nil {
		m.hooks.Deactivate()
	}
	m.log.Debug("deactivated")
}

// Interrupt ends the running session and tells the listener, once. It is a
// no-op when the session is not running by the time the owner handles it.
func (m *Manager) Interrupt() {
	gen := m.generation.Load()
	m.exec.Post(func() {
		if gen != m.generation.Load() || !m.running {
			return
		}
		m.interrupts.Add(1)
		m.log.Info("interrupted")
		m.Stop()
		if m.listener != nil {
			m.listener.SessionWasInterrupted()
		}
	})
}

// Interruptions counts the interruptions delivered so far.
func (m *Manager) Interruptions() uint64 {
	return m.interrupts.Load()
}

var _ Session = (*Manager)(nil)
