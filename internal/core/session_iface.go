package core

// SessionID identifies one realtime connection.
type SessionID string
