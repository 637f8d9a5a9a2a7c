package event

import (
	"hobby-relay/domain"
)

// DomainEvent is what the dispatcher hands to a session sink.
type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is a persisted (or best-effort stamped) message broadcast to a room.
type MessagePosted struct {
	Message domain.Message
}

func (m MessagePosted) RoomID() domain.RoomID {
	return m.Message.Room
}

// HistoryReplayed carries the recent messages of a room to a session that just joined it.
type HistoryReplayed struct {
	Room     domain.RoomID
	Messages []domain.Message
}

func (h HistoryReplayed) RoomID() domain.RoomID {
	return h.Room
}
