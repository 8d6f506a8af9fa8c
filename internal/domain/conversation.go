package domain

import "time"

// Turn is one persisted user/assistant exchange. Turns are immutable
// once written; the only write paths are append and whole-session
// delete.
type Turn struct {
	SessionID   string
	SequenceKey string
	UserMessage string
	AIMessage   string
	Title       string
	CreatedAt   time.Time
}

// SessionSummary is the read-path projection of a session: all turns
// grouped by session id and reduced to a representative title and the
// most recent activity timestamp.
type SessionSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// SessionMessage is one transcript entry as returned to the front-end.
type SessionMessage struct {
	UserMessage string    `json:"userMessage"`
	AIMessage   string    `json:"aiMessage"`
	Timestamp   time.Time `json:"timestamp"`
}
