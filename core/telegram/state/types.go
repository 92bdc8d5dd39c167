package state

import "time"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
	// StateAwaitingCity means the next free text is the user's new home city.
	StateAwaitingCity State = "awaiting_city"
)

// Session stores conversation state for a user.
type Session struct {
	State State
	// Since is the last activity in State.
	Since time.Time
	// Attempts counts rejected inputs in the current state.
	Attempts int
}

// Expired reports whether a non-idle session has been inactive longer than ttl.
// A non-positive ttl never expires.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && s.State != StateIdle && now.Sub(s.Since) > ttl
}

// Manager orchestrates user sessions and FSM state transitions.
type Manager interface {
	Get(userID int64) Session
	GetState(userID int64) State
	HasState(userID int64) bool
	SetState(userID int64, st State)
	ClearState(userID int64)
	// Touch marks the session active now.
	Touch(userID int64)
	// IncAttempts records a rejected input and returns the new count.
	IncAttempts(userID int64) int
	// Sweep resets sessions older than ttl and returns the affected users.
	Sweep(ttl time.Duration) []int64
	Len() int
}
