package domain

import "strings"

// RoomID identifies a hobby channel. Rooms are created lazily on first join.
type RoomID string

func NewRoomID(raw string) RoomID {
	return RoomID(strings.TrimSpace(raw))
}

func (r RoomID) String() string {
	return string(r)
}

func (r RoomID) IsZero() bool {
	return r == ""
}
