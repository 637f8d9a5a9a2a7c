package runtime

import (
	"hobby-relay/contract"
	"hobby-relay/domain"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[string]struct{}

// Registry is the in-memory room table. It holds non-owning references to
// session sinks; the transport owns the sessions themselves.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]contract.Sink // map session -> Sink
	sessionRoom map[string]domain.RoomID // map session -> current room
	roomMembers map[domain.RoomID]Set    // map room -> sessions
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]contract.Sink),
		sessionRoom: make(map[string]domain.RoomID),
		roomMembers: make(map[domain.RoomID]Set),
	}
}

// Members returns a point-in-time snapshot of the sinks attached to a room.
// Returns nil if the room doesn't exist or has no members.
func (r *Registry) Members(roomID domain.RoomID) []contract.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	sinks := make([]contract.Sink, 0, len(members))
	for sessionID := range members {
		if sink, exists := r.sessions[sessionID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Join attaches a session to a room. Joining the room the session is already in is a no-op.
// A session attached elsewhere is detached first, so it belongs to at most one room.
// The room is initialized on the fly.
func (r *Registry) Join(roomID domain.RoomID, sink contract.Sink) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID := sink.ID()
	previous, attached := r.sessionRoom[sessionID]
	if attached && previous == roomID {
		r.sessions[sessionID] = sink
		return previous, false
	}
	if attached {
		r.detach(sessionID, previous)
	}

	r.sessions[sessionID] = sink
	r.sessionRoom[sessionID] = roomID
	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][sessionID] = struct{}{}
	return previous, attached
}

// Leave removes a session from its current room, if any.
func (r *Registry) Leave(sessionID string) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.sessionRoom[sessionID]
	if !ok {
		return "", false
	}
	r.detach(sessionID, roomID)
	delete(r.sessions, sessionID)
	return roomID, true
}

// detach must be called with the write lock held.
// If no one is left in the room, the room entry is removed entirely.
func (r *Registry) detach(sessionID string, roomID domain.RoomID) {
	delete(r.sessionRoom, sessionID)
	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
}

func (r *Registry) RoomOf(sessionID string) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.sessionRoom[sessionID]
	return roomID, ok
}

func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers)
}

func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
