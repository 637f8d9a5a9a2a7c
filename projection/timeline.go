// Package projection builds local timelines from observed events.
// Handles ordering and deduplication.
// Does not emit events or interact with the terminal directly.
package projection

import (
	"hobby-relay/domain"
	"hobby-relay/domain/event"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Timeline holds the messages seen in the current room, oldest first.
type Timeline struct {
	mu       sync.Mutex
	room     domain.RoomID
	seen     map[uuid.UUID]struct{}
	messages []domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[uuid.UUID]struct{})}
}

// Consume applies an event and returns the messages that are new to the timeline.
// A history replay resets the timeline to the replayed room. Messages from
// another room and already seen messages are ignored.
func (t *Timeline) Consume(e event.DomainEvent) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.HistoryReplayed:
		t.room = evt.Room
		t.seen = make(map[uuid.UUID]struct{}, len(evt.Messages))
		t.messages = nil
		return t.add(evt.Messages)
	case event.MessagePosted:
		if evt.Message.Room != t.room {
			return nil
		}
		return t.add([]domain.Message{evt.Message})
	}
	return nil
}

func (t *Timeline) add(messages []domain.Message) []domain.Message {
	var added []domain.Message
	for _, message := range messages {
		if _, ok := t.seen[message.ID]; ok {
			continue
		}
		t.seen[message.ID] = struct{}{}
		added = append(added, message)
	}
	t.messages = append(t.messages, added...)
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].At.Before(t.messages[j].At)
	})
	return added
}

func (t *Timeline) Room() domain.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.room
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Message(nil), t.messages...)
}
