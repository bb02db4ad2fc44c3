// Package sessions implements the Session Manager (C8): creation, lookup,
// listing, and idle eviction of the per-conversation containers a Client
// runs its tool calls against.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexusrun/agentrt/internal/container"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound is returned by GetSession/CleanupSession when a session ID has
// no corresponding entry — either it was never created or it was already
// evicted (§4.8, grounded in session_manager.py's SessionNotFoundError).
var ErrNotFound = errors.New("session not found")

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Session is one active conversation's worker binding and bookkeeping.
type Session struct {
	ID           string
	AgentID      string
	ConfigName   string
	Container    container.Info
	Status       Status
	CreatedAt    time.Time
	LastActivity time.Time
	MessageCount int

	mu sync.Mutex
}

// Touch records activity against this session, resetting its idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now()
	s.MessageCount++
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.LastActivity)
}

var (
	sessionMetricsOnce sync.Once
	activeSessions     prometheus.Gauge
)

func getActiveSessionsGauge() prometheus.Gauge {
	sessionMetricsOnce.Do(func() {
		activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentrt_active_sessions",
			Help: "Number of sessions currently tracked by the session manager",
		})
	})
	return activeSessions
}

// Manager owns the set of live sessions and their backing container
// workers, evicting idle sessions on a fixed cadence (§4.8: "checks every
// 60 seconds").
type Manager struct {
	provider    container.Provider
	idleTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	stopCh chan struct{}
	doneCh chan struct{}
}

// DefaultIdleTimeout is how long a session may sit without activity before
// the cleanup loop evicts it.
const DefaultIdleTimeout = 30 * time.Minute

// cleanupInterval is the cleanup loop's fixed cadence (§4.8).
const cleanupInterval = 60 * time.Second

// NewManager builds a Manager bound to a container Provider.
func NewManager(provider container.Provider, idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider:    provider,
		idleTimeout: idleTimeout,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Start launches the idle-eviction background loop. Calling Start twice is
// a no-op error path — callers should Stop before restarting.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return errors.New("sessions: manager already started")
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.cleanupLoop()
	m.logger.Info("session manager started")
	return nil
}

// Stop halts the cleanup loop and tears down every remaining session.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.stopCh = nil
	m.doneCh = nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.CleanupSession(ctx, id); err != nil {
			m.logger.Warn("cleanup during stop failed", "session_id", id, "error", err)
		}
	}
	m.logger.Info("session manager stopped")
	return nil
}

func (m *Manager) cleanupLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanupIdleSessions()
		}
	}
}

func (m *Manager) cleanupIdleSessions() {
	now := time.Now()
	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.idleSince(now) > m.idleTimeout {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.logger.Info("evicting idle session", "session_id", id)
		if err := m.CleanupSession(context.Background(), id); err != nil {
			m.logger.Error("evict idle session failed", "session_id", id, "error", err)
		}
	}
}

// CreateSession starts a worker for a new session and registers it. If
// container startup fails, no partial session is left behind (§7
// "ContainerStartError — surfaced during session creation; partial session
// MUST be cleaned up first").
func (m *Manager) CreateSession(ctx context.Context, configName string, limits container.ResourceLimits, env map[string]string) (*Session, error) {
	sessionID := fmt.Sprintf("sess-%s", shortID())
	agentID := fmt.Sprintf("agent-%s", shortID())

	info, err := m.provider.Create(ctx, sessionID, agentID, limits, env)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:           sessionID,
		AgentID:      agentID,
		ConfigName:   configName,
		Container:    info,
		Status:       StatusRunning,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()
	getActiveSessionsGauge().Inc()

	m.logger.Info("created session", "session_id", sessionID, "agent_id", agentID, "config", configName)
	return session, nil
}

// GetSession looks up a session by ID.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

// ListSessions returns every currently tracked session.
func (m *Manager) ListSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CleanupSession stops a session's worker and removes it from tracking.
// Removal happens regardless of whether the container teardown succeeds, so
// a flaky worker can never wedge a session in the table forever.
func (m *Manager) CleanupSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	getActiveSessionsGauge().Dec()
	if err := m.provider.Stop(ctx, s.Container); err != nil {
		m.logger.Error("stop session container failed", "session_id", sessionID, "error", err)
		return err
	}
	m.logger.Info("cleaned up session", "session_id", sessionID)
	return nil
}

// Query sends a message to a session's worker and streams its response
// lines back through lines, marshaling history the way the worker's /query
// contract expects (§4.9).
func (m *Manager) Query(ctx context.Context, sessionID, message string, history []json.RawMessage, lines chan<- string) error {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.Touch()
	return m.provider.ExecuteQuery(ctx, session.Container, message, history, lines)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
