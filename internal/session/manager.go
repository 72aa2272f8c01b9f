package session

import (
	"sync"
	"time"
)

// Manager is the in-process Store. Sessions live until the process exits.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	maxHistory int
	onCreate   func(*Session)
}

func NewManager(maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
	}
}

// SetCreateHook registers a callback run after a session is lazily created.
func (m *Manager) SetCreateHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCreate = hook
}

func (m *Manager) MaxHistory() int { return m.maxHistory }

func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	s, created := m.getOrCreateLocked(id)
	out := clone(s)
	hook := m.onCreate
	m.mu.Unlock()

	if created && hook != nil {
		hook(out)
	}
	return out
}

func (m *Manager) AppendTurn(id string, turn Turn) []Turn {
	m.mu.Lock()
	s, created := m.getOrCreateLocked(id)
	s.Turns = append(s.Turns, turn)
	s.Turns = trimTurns(s.Turns, m.maxHistory)
	s.LastActivityAt = time.Now().UTC()
	out := cloneTurns(s.Turns)
	var snapshot *Session
	hook := m.onCreate
	if created && hook != nil {
		snapshot = clone(s)
	}
	m.mu.Unlock()

	if snapshot != nil {
		hook(snapshot)
	}
	return out
}

func (m *Manager) Trim(id string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Turns = trimTurns(s.Turns, max)
	return nil
}

func (m *Manager) History(id string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTurns(s.Turns), nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) getOrCreateLocked(id string) (*Session, bool) {
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[id] = s
	return s, true
}

// trimTurns keeps the newest max turns. The result never aliases the dropped prefix.
func trimTurns(turns []Turn, max int) []Turn {
	if max < 0 {
		max = 0
	}
	if len(turns) <= max {
		return turns
	}
	kept := make([]Turn, max)
	copy(kept, turns[len(turns)-max:])
	return kept
}

func cloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return []Turn{}
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

func clone(s *Session) *Session {
	c := *s
	c.Turns = cloneTurns(s.Turns)
	return &c
}

var _ Store = (*Manager)(nil)
