package session

import (
	"context"
	"sync"

	"github.com/tmc/nodedbg/internal/dbgerr"
)

// Manager is the process-wide singleton home of at most one active
// Session, guarded by a mutex rather than scattered package globals.
type Manager struct {
	mu   sync.Mutex
	cfg  config
	sess *Session
}

// NewManager constructs a Manager with no active session.
func NewManager(opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{cfg: cfg}
}

// Start launches scriptPath under a fresh session. It fails with
// session-already-active if one is already running.
func (m *Manager) Start(ctx context.Context, scriptPath string) (*Session, *PauseSnapshot, error) {
	m.mu.Lock()
	if m.sess != nil && !m.sess.isTerminated() {
		m.mu.Unlock()
		return nil, nil, dbgerr.New(dbgerr.SessionAlreadyActive, "a debug session is already active; stop it first")
	}
	m.mu.Unlock()

	sess, pause, err := attach(ctx, scriptPath, m.cfg)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()

	return sess, pause, nil
}

// Current returns the active session, or no-session if none exists or
// the previously active one has since terminated (target exit,
// transport loss).
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	sess := m.sess
	if sess != nil && sess.isTerminated() {
		m.sess = nil
		sess = nil
	}
	m.mu.Unlock()

	if sess == nil {
		return nil, dbgerr.New(dbgerr.NoSession, "no active debug session")
	}
	return sess, nil
}

// Stop tears down the active session, if any. It is idempotent:
// calling it with no active session succeeds as a null-op.
func (m *Manager) Stop() (wasActive bool) {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	m.mu.Unlock()

	if sess == nil || sess.isTerminated() {
		return false
	}
	sess.Terminate()
	return true
}
