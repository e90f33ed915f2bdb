package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	MessageID   string
	MessageKind string
)

// KindDirect is the only kind this service creates.
const KindDirect MessageKind = "direct"

// Message is immutable once persisted.
type Message struct {
	ID             MessageID   `json:"id"`
	Text           string      `json:"msg"`
	AuthorUsername string      `json:"msgFrom"`
	SentAt         time.Time   `json:"msgDateTime"`
	Kind           MessageKind `json:"type"`
}

// NewMessageID returns a time-ordered id.
func NewMessageID() MessageID {
	return MessageID(mustV7())
}

func mustV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
