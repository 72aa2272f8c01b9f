package session

import (
	"errors"
	"time"
)

// Role tags a turn as user or assistant input.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var ErrNotFound = errors.New("session not found")

// Turn is one immutable message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of a conversation thread.
type Session struct {
	ID             string    `json:"session_id"`
	Turns          []Turn    `json:"turns"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Store holds bounded per-session turn history.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetOrCreate returns the session for id, creating an empty one on first use.
	GetOrCreate(id string) *Session
	// AppendTurn appends a turn and trims the session to the store's limit.
	// The session is created if it does not exist yet.
	AppendTurn(id string, turn Turn) []Turn
	// Trim drops the oldest turns until at most max remain.
	Trim(id string, max int) error
	// History returns a copy of the session's turns in chronological order.
	History(id string) ([]Turn, error)
	// Len returns the number of sessions held.
	Len() int
}
