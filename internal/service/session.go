package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgfinder/internal/memory"
	"orgfinder/internal/metrics"
	"orgfinder/internal/spatial"
)

// ErrSessionNotFound is returned for an unknown or expired session id
var ErrSessionNotFound = errors.New("session not found")

// Session owns the conversation memory and the geocode cache of one user.
// Requests of a session are serialized through mu.
type Session struct {
	ID        string
	CreatedAt time.Time
	Memory    *memory.Memory
	Spatial   *spatial.Resolver

	mu       sync.Mutex
	lastUsed atomic.Int64
}

// SessionOptions configures new sessions
type SessionOptions struct {
	HistorySize int
	TTL         time.Duration
	Spatial     spatial.Options
	Geocoder    spatial.Geocoder
}

// SessionManager creates, finds and expires sessions
type SessionManager struct {
	opts   SessionOptions
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a new session manager
func NewSessionManager(opts SessionOptions, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		opts:     opts,
		logger:   logger.With(zap.String("component", "sessions")),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session
func (m *SessionManager) Create() *Session {
	return m.create(uuid.NewString())
}

func (m *SessionManager) create(id string) *Session {
	now := m.now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		Memory:    memory.New(m.opts.HistorySize),
		Spatial:   spatial.NewResolver(m.opts.Spatial, m.opts.Geocoder, m.logger),
	}
	s.lastUsed.Store(now.UnixNano())

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	m.logger.Debug("Session created", zap.String("session_id", id))
	return s
}

// Get returns a live session
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Resolve returns the session for id, or a new one when id is empty
func (m *SessionManager) Resolve(id string) (*Session, error) {
	if id == "" {
		return m.Create(), nil
	}
	return m.Get(id)
}

// Delete removes a session
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(count))
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire drops sessions idle for longer than the configured TTL and
// returns how many were removed
func (m *SessionManager) Expire() int {
	if m.opts.TTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.TTL)

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastUsed.Load() < cutoff.UnixNano() {
			delete(m.sessions, id)
			removed++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		metrics.ActiveSessions.Set(float64(count))
		m.logger.Info("Expired idle sessions", zap.Int("removed", removed), zap.Int("remaining", count))
	}
	return removed
}

// RunJanitor expires idle sessions every interval until ctx is done
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire()
		}
	}
}

// lock serializes a request on the session and marks it used
func (s *Session) lock(now time.Time) func() {
	s.lastUsed.Store(now.UnixNano())
	s.mu.Lock()
	return s.mu.Unlock
}
