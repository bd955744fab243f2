package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/observability/metrics"
)

var ErrTooManySessions = errors.New("too many open sessions")

// Manager holds the open sessions. Sessions share collaborators but no state.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Controller)}
}

// Create opens a session. At the MaxSessions cap it first evicts idle
// sessions and fails with ErrTooManySessions if none could be freed.
func (m *Manager) Create() (*Controller, error) {
	if m.cfg.MaxSessions > 0 && m.Len() >= m.cfg.MaxSessions {
		m.Sweep()
	}

	ctrl := NewController(uuid.New().String(), m.cfg)

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.sessions[ctrl.ID()] = ctrl
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
	return ctrl, nil
}

func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctrl, ok := m.sessions[id]
	return ctrl, ok
}

// Close abandons and forgets a session. It reports whether the id existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	ctrl, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		ctrl.Close()
		metrics.SetActiveSessions(n)
	}
	return ok
}

// Sweep closes sessions idle for longer than IdleTimeout and returns how many
// were evicted.
func (m *Manager) Sweep() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Controller
	for id, ctrl := range m.sessions {
		if ctrl.idle(cutoff) {
			expired = append(expired, ctrl)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, ctrl := range expired {
		ctrl.Close()
	}
	if len(expired) > 0 {
		metrics.SetActiveSessions(n)
		logger.Log.WithField("evicted", len(expired)).Info("Evicted idle prediction sessions")
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.cfg.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, ctrl := range open {
		ctrl.Close()
	}
	metrics.SetActiveSessions(0)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
