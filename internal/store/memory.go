package store

import (
	"sync"
	"time"
)

// Step names the active sub-view of a session.
type Step string

const (
	StepAnalyze  Step = "analyze"
	StepFollowUp Step = "followup"
)

// Session is the per-browser state carried between the two steps.
type Session struct {
	ID              string
	Step            Step
	DocumentName    string
	Document        string
	AuditSummary    string
	SecondaryResult string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Session) HasSummary() bool { return s.AuditSummary != "" }

func (s Session) HasDocument() bool { return s.Document != "" }

type entry struct {
	mu       sync.Mutex
	sess     Session
	lastSeen time.Time
}

// MemoryStore keeps sessions in process memory. Each session has its own
// lock, so a slow action in one session never blocks another.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (m *MemoryStore) entryFor(sessionID string) *entry {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[sessionID]; ok {
		return e
	}
	now := m.now()
	e = &entry{
		sess:     Session{ID: sessionID, Step: StepAnalyze, CreatedAt: now, UpdatedAt: now},
		lastSeen: now,
	}
	m.sessions[sessionID] = e
	return e
}

// With runs fn with exclusive access to the session, creating it if needed.
// Changes fn makes are kept only when it returns nil.
func (m *MemoryStore) With(sessionID string, fn func(*Session) error) error {
	e := m.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	work := e.sess
	err := fn(&work)
	e.lastSeen = m.now()
	if err != nil {
		return err
	}
	work.ID = sessionID
	work.UpdatedAt = e.lastSeen
	e.sess = work
	return nil
}

// Snapshot returns a copy of the session, creating it if needed.
func (m *MemoryStore) Snapshot(sessionID string) Session {
	e := m.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = m.now()
	return e.sess
}

func (m *MemoryStore) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
// were removed. Sessions with an action in flight are skipped.
func (m *MemoryStore) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
