package core

import (
	"github.com/dkeye/chatsync/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// RoomService is the core-facing API of a chat room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ChatID() domain.ChatID
	MemberCount() int
	MembersSnapshot() []SessionID

	AddMember(sid SessionID, conn SignalConnection)
	RemoveMember(sid SessionID) bool
	Broadcast(data Frame) PublishResult
}

type RoomInfo struct {
	ChatID      domain.ChatID `json:"chatId"`
	MemberCount int           `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.ChatID) RoomService
	Get(id domain.ChatID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.ChatID)
}

// Scope selects the recipients of a publish: one room or every connection.
type Scope struct {
	All  bool
	Room domain.ChatID
}

var ScopeAll = Scope{All: true}

func RoomScope(id domain.ChatID) Scope { return Scope{Room: id} }
