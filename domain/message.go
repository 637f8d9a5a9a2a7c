// Package domain contains core concepts of the chat relay.
// This file defines Message records and their identity rules.
// Messages are immutable once stamped by the store.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat line posted in a room.
// At is always server assigned.
type Message struct {
	ID     uuid.UUID
	Room   RoomID
	Sender string
	Text   string
	At     time.Time
}

// NewMessage builds an unstamped message. The store sets At on append.
func NewMessage(room RoomID, sender, text string) Message {
	return Message{
		ID:     uuid.New(),
		Room:   room,
		Sender: sender,
		Text:   text,
	}
}

// NormalizeText trims surrounding whitespace. An empty result means the text
// must not be logged or broadcast.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
