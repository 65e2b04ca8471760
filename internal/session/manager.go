package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Manager is the process-wide session registry. It holds only the
// lightweight lifecycle record described in types.go; the Orchestrator's
// connection loop owns the heavier live state (VAT tracker, TBIC, the open
// Transcriber handle) locally, keyed by the same session id.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		now:               time.Now,
	}
}

// SetExpireHook registers a callback invoked for each session the janitor
// expires for inactivity. cmd/voxrelay uses it to keep the session metrics
// current; it does not stop the expired session's connection loop.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a new Session with id session_<userId>_<epochMillis>.
func (m *Manager) Create(userID, languageCode string) *Session {
	if languageCode == "" {
		languageCode = "en-US"
	}
	now := m.now().UTC()
	s := &Session{
		ID:             fmt.Sprintf("session_%s_%d", userID, now.UnixMilli()),
		UserID:         userID,
		LanguageCode:   languageCode,
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now().UTC()
	return nil
}

// SetProcessing flags whether the session currently has processing enabled
// (i.e. is feeding frames through the Analyzer/VAT pipeline).
func (m *Manager) SetProcessing(sessionID string, processing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Processing = processing
	s.LastActivityAt = m.now().UTC()
	return nil
}

// SetHasTranscriber flags whether the session currently owns an open
// Transcriber handle.
func (m *Manager) SetHasTranscriber(sessionID string, open bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.HasTranscriber = open
	s.LastActivityAt = m.now().UTC()
	return nil
}

// Remove deletes a session from the registry. Used when the Orchestrator's
// connection loop ends, after it has torn down live state; stop-processing
// leaves the session registered.
func (m *Manager) Remove(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	return clone(s), nil
}

// List returns a Snapshot of every registered session, for GET /sessions.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now().UTC()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Snapshot{
			ID:             s.ID,
			UserID:         s.UserID,
			IsProcessing:   s.Processing,
			HasTranscriber: s.HasTranscriber,
			Duration:       now.Sub(s.CreatedAt),
			LanguageCode:   s.LanguageCode,
		})
	}
	return out
}

// ActiveCount reports the number of registered sessions, for the health and
// status HTTP endpoints.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActiveTranscriptionCount reports sessions with an open Transcriber, for
// the health endpoint's activeTranscriptions field.
func (m *Manager) ActiveTranscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.HasTranscriber {
			count++
		}
	}
	return count
}

// StartJanitor periodically expires sessions that have seen no activity for
// longer than the configured inactivity timeout, removing them from the
// registry and then calling the onExpire hook, if set, for each one.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := m.now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		expired = append(expired, clone(s))
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
