package domain

type ChatUpdateType string

const (
	ChatCreated    ChatUpdateType = "created"
	ChatNewMessage ChatUpdateType = "newMessage"
)

// ChatUpdate is the event pushed to realtime subscribers. Receivers must
// reject any Type other than ChatCreated or ChatNewMessage.
type ChatUpdate struct {
	Type ChatUpdateType `json:"type"`
	Chat PopulatedChat  `json:"chat"`
}

func (t ChatUpdateType) Valid() bool {
	return t == ChatCreated || t == ChatNewMessage
}
