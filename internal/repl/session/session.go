// Package session manages REPL session lifecycle.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/planner"
)

// Settings are the per-session compile settings.
type Settings struct {
	Primary      string                      `json:"primary"`
	Optimization compiler.OptimizationConfig `json:"optimization"`
	Batch        planner.BatchConfig         `json:"batch"`
}

// Session holds per-connection REPL state.
type Session struct {
	mu           sync.Mutex
	ID           string    `json:"id"`
	Settings     Settings  `json:"settings"`
	History      []string  `json:"history"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// NewSession creates a session with the given settings.
func NewSession(settings Settings) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		Settings:     settings,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastActiveAt = time.Now()
	s.mu.Unlock()
}

// AddHistory appends a filter or meta-command to the session history.
func (s *Session) AddHistory(line string) {
	s.mu.Lock()
	s.History = append(s.History, line)
	s.LastActiveAt = time.Now()
	s.mu.Unlock()
}

// HistoryLines returns a copy of the session history.
func (s *Session) HistoryLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.History...)
}

// Current returns a copy of the session settings.
func (s *Session) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Settings
}

// Update applies fn to the session settings. If fn returns an error the
// settings are left unchanged.
func (s *Session) Update(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.Settings
	if err := fn(&next); err != nil {
		return err
	}
	s.Settings = next
	return nil
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActiveAt) > timeout
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
	defaults    Settings
}

// NewManager creates a session manager with the given timeouts. New
// sessions start with defaults.
func NewManager(maxAge, idleTimeout time.Duration, defaults Settings) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		defaults:    defaults,
	}
}

// Create creates a new session and returns it.
func (m *Manager) Create() *Session {
	s := NewSession(m.defaults)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	return s
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
		}
	}
}

// Run calls Cleanup every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Cleanup()
		}
	}
}
