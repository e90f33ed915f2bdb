package domain

// Realtime frame types.
const (
	FrameJoinChat   = "joinChat"
	FrameLeaveChat  = "leaveChat"
	FramePing       = "ping"
	FramePong       = "pong"
	FrameChatUpdate = "chatUpdate"
	FrameError      = "error"
)

// Envelope is the JSON frame exchanged on the realtime channel.
type Envelope struct {
	Type   string      `json:"type"`
	ChatID ChatID      `json:"chatId,omitempty"`
	Update *ChatUpdate `json:"update,omitempty"`
	Error  string      `json:"error,omitempty"`
}
