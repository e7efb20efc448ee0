package attempt

import (
	"errors"
	"sync"
	"time"

	"examprep/internal/exam"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

type ManagerConfig struct {
	Engine      *exam.Engine
	IdleTimeout time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
	OnExpire    func()
}

// Manager owns every live State. Each State is guarded by its own mutex so
// one session's operations run one at a time while sessions proceed in
// parallel.
type Manager struct {
	engine   *exam.Engine
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	onExpire func()

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu        sync.Mutex
	state     *exam.State
	createdAt time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	timeout := cfg.IdleTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onExpire := cfg.OnExpire
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Manager{
		engine:   cfg.Engine,
		timeout:  timeout,
		now:      now,
		logger:   logger,
		onExpire: onExpire,
		sessions: make(map[string]*entry),
	}
}

// Create registers an empty session and returns its id. Sessions left idle
// past the timeout are dropped on the way.
func (m *Manager) Create() string {
	now := m.now()
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
	m.sessions[id] = &entry{state: exam.NewState(), createdAt: now}
	return id
}

func (m *Manager) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Do runs fn against the session's state while holding the session lock.
// Idle expiry is evaluated first: an expired session is wiped and
// ErrSessionExpired returned without calling fn.
func (m *Manager) Do(id string, fn func(e *exam.Engine, s *exam.State) error) error {
	m.mu.Lock()
	en, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	examID := en.state.ExamID()
	if m.engine.Expire(en.state, m.now(), m.timeout) {
		m.onExpire()
		m.logger.Info("session expired",
			zap.String("session_id", id),
			zap.String("exam_id", examID),
			zap.Duration("idle_timeout", m.timeout),
		)
		return ErrSessionExpired
	}
	return fn(m.engine, en.state)
}

func (m *Manager) sweepLocked(now time.Time) {
	for id, en := range m.sessions {
		if !en.mu.TryLock() {
			continue
		}
		last := en.state.LastActivity()
		if last.IsZero() {
			last = en.createdAt
		}
		stale := now.Sub(last) > m.timeout
		en.mu.Unlock()
		if stale {
			delete(m.sessions, id)
		}
	}
}
