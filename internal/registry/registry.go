package registry

import (
	"sync"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/event"

	"github.com/samber/lo"
)

type member struct {
	p      domain.Participant
	sender event.Sender
}

type room struct {
	mu      sync.Mutex
	members map[string]*member
	closed  bool // set when the entry has been pruned from the registry
}

// Registry tracks live membership per room. The top-level mutex guards only
// the room map; each room's member set has its own lock, so traffic on one
// room never contends with another. Purely in-memory, no I/O.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

func (r *Registry) get(roomID string, create bool) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok && create {
		rm = &room{members: make(map[string]*member)}
		r.rooms[roomID] = rm
	}
	return rm
}

// Join adds the participant to the room's member set, creating the set if
// absent, and returns the member count after the addition.
func (r *Registry) Join(roomID string, p domain.Participant, s event.Sender) int {
	for {
		rm := r.get(roomID, true)

		rm.mu.Lock()
		if rm.closed {
			// pruned between lookup and lock; start over
			rm.mu.Unlock()
			continue
		}
		rm.members[p.ID] = &member{p: p, sender: s}
		n := len(rm.members)
		rm.mu.Unlock()
		return n
	}
}

// Leave removes the participant and returns the exact post-removal count.
// An emptied member set is pruned; the durable Room record is untouched.
func (r *Registry) Leave(roomID, participantID string) int {
	rm := r.get(roomID, false)
	if rm == nil {
		return 0
	}

	rm.mu.Lock()
	delete(rm.members, participantID)
	n := len(rm.members)
	rm.mu.Unlock()

	if n == 0 {
		r.mu.Lock()
		if cur, ok := r.rooms[roomID]; ok && cur == rm {
			rm.mu.Lock()
			if len(rm.members) == 0 {
				rm.closed = true
				delete(r.rooms, roomID)
			}
			rm.mu.Unlock()
		}
		r.mu.Unlock()
	}
	return n
}

// Members returns a read-only snapshot of the room's participants.
func (r *Registry) Members(roomID string) []domain.Participant {
	rm := r.get(roomID, false)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	return lo.Map(lo.Values(rm.members), func(m *member, _ int) domain.Participant {
		return m.p
	})
}

// Senders returns the outbound streams of everyone in the room except
// excludeID (pass "" to address the whole room).
func (r *Registry) Senders(roomID, excludeID string) []event.Sender {
	rm := r.get(roomID, false)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	out := make([]event.Sender, 0, len(rm.members))
	for id, m := range rm.members {
		if id == excludeID {
			continue
		}
		out = append(out, m.sender)
	}
	return out
}

func (r *Registry) Count(roomID string) int {
	rm := r.get(roomID, false)
	if rm == nil {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// UpdateName keeps the tracked participant in sync with a username change
// made by its owning gateway.
func (r *Registry) UpdateName(roomID, participantID, username string) {
	rm := r.get(roomID, false)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if m, ok := rm.members[participantID]; ok {
		m.p.Username = username
	}
}

// Rooms lists the rooms that currently have at least one live member.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.rooms)
}
