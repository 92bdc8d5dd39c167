package state

import (
	"sort"
	"sync"
	"time"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	now      func() time.Time
}

// Option customizes a memory manager.
type Option func(*memoryManager)

// WithClock replaces the wall clock used for Since and Sweep.
func WithClock(now func() time.Time) Option {
	return func(m *memoryManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryManager constructs an in-memory Manager. Idle users hold no entry.
func NewMemoryManager(opts ...Option) Manager {
	m := &memoryManager{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the user's session, or an idle session if none exists.
func (m *memoryManager) Get(userID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[userID]; ok {
		return *sess
	}
	return Session{State: StateIdle}
}

// GetState returns the current FSM state of a user, or StateIdle if none exists.
func (m *memoryManager) GetState(userID int64) State {
	return m.Get(userID).State
}

// HasState checks if a user has an active state other than idle.
func (m *memoryManager) HasState(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// SetState enters st for the user, stamps Since and resets the attempt
// counter. Re-entering the current state starts a fresh prompt.
func (m *memoryManager) SetState(userID int64, st State) {
	if st == StateIdle {
		m.ClearState(userID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &Session{State: st, Since: m.now()}
}

// Touch records activity in the current state without changing it.
func (m *memoryManager) Touch(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		sess.Since = m.now()
	}
}

// ClearState returns the user to idle.
func (m *memoryManager) ClearState(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *memoryManager) IncAttempts(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return 0
	}
	sess.Attempts++
	sess.Since = m.now()
	return sess.Attempts
}

func (m *memoryManager) Sweep(ttl time.Duration) []int64 {
	if ttl <= 0 {
		return nil
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []int64
	for id, sess := range m.sessions {
		if sess.Expired(now, ttl) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

func (m *memoryManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
