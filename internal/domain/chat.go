package domain

import (
	"slices"
	"time"
)

type ChatID string

// Chat is the stored document. Messages is append-only and its order is
// the order appends committed; Participants never shrinks.
type Chat struct {
	ID           ChatID      `json:"id"`
	Participants []UserID    `json:"participants"`
	Messages     []MessageID `json:"messages"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func NewChatID() ChatID {
	return ChatID(mustV7())
}

func (c *Chat) HasParticipant(id UserID) bool {
	return slices.Contains(c.Participants, id)
}

// Touch moves UpdatedAt forward to now, or by one nanosecond when the clock
// has not advanced past the previous value.
func (c *Chat) Touch(now time.Time) {
	if !now.After(c.UpdatedAt) {
		now = c.UpdatedAt.Add(time.Nanosecond)
	}
	c.UpdatedAt = now
}

// PopulatedMessage is a message with its author resolved. Author is nil when
// the username no longer resolves to a user.
type PopulatedMessage struct {
	Message
	Author *User `json:"author"`
}

// PopulatedChat is the hydrated view returned by the API and broadcast to
// subscribers.
type PopulatedChat struct {
	ID           ChatID             `json:"id"`
	Participants []User             `json:"participants"`
	Messages     []PopulatedMessage `json:"messages"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}
