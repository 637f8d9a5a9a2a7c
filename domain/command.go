package domain

type Command interface {
	RoomID() RoomID
}

// PostMessageCommand is a chat event received from a session.
// Room may be empty, in which case the session's current room is used.
type PostMessageCommand struct {
	SessionID string
	Room      RoomID
	Sender    string
	Text      string
}

func (p PostMessageCommand) RoomID() RoomID {
	return p.Room
}
