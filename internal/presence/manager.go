package presence

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/event"
	"github.com/cwrk-planet/board-service/internal/registry"

	"github.com/samber/lo"
)

// Broadcaster fans a message out to a room, optionally excluding one
// connection.
type Broadcaster interface {
	Broadcast(roomID, excludeID string, msg event.Message)
}

// Store is the durable room boundary the manager touches on join. All
// failures here are non-fatal: they are logged and the live side effects
// proceed regardless.
type Store interface {
	EnsureExists(ctx context.Context, roomID string) error
	ReadAll(ctx context.Context, roomID string) ([]domain.DrawingCommand, error)
	TouchActivity(ctx context.Context, roomID string) error
}

// Manager drives the join/leave/disconnect transitions of connections and
// the notifications each one triggers.
type Manager struct {
	reg   *registry.Registry
	relay Broadcaster
	store Store
}

func NewManager(reg *registry.Registry, relay Broadcaster, store Store) *Manager {
	return &Manager{reg: reg, relay: relay, store: store}
}

// Join moves the session into roomID. If it was joined to a different room,
// the leave sequence for that room runs first. A malformed room id fails with
// domain.ErrInvalidRoom before anything is registered.
func (m *Manager) Join(ctx context.Context, s *Session, roomID string, data event.UserData) error {
	if s.Room != "" && s.Room != roomID {
		m.Leave(ctx, s)
	}

	if strings.TrimSpace(roomID) == "" {
		return domain.ErrInvalidRoom
	}

	if data.Username != "" {
		s.Username = data.Username
	}
	s.Room = roomID
	s.JoinedAt = time.Now()

	count := m.reg.Join(roomID, s.participant(), s.conn)

	if err := m.store.EnsureExists(ctx, roomID); err != nil {
		slog.Warn("ensure room failed", "room", roomID, "err", err)
	}

	m.relay.Broadcast(roomID, "", event.Message{Type: event.TypeRoomUsersCount, Payload: count})
	m.relay.Broadcast(roomID, s.ID, event.Message{
		Type:    event.TypeUserConnected,
		Payload: event.UserConnectedPayload{ConnectionID: s.ID, Color: s.Color},
	})
	m.relay.Broadcast(roomID, s.ID, event.Message{
		Type:    event.TypeUserJoined,
		Payload: event.UserEventPayload{UserID: s.ID, Username: s.Username},
	})

	if cmds, err := m.store.ReadAll(ctx, roomID); err != nil {
		slog.Warn("load drawing history failed", "room", roomID, "err", err)
	} else {
		valid := lo.Filter(cmds, func(c domain.DrawingCommand, _ int) bool {
			return len(c.Data) > 0
		})
		if len(valid) > 0 {
			s.send(event.Message{Type: event.TypeLoadDrawingData, Payload: valid})
		}
	}

	if err := m.store.TouchActivity(ctx, roomID); err != nil {
		slog.Debug("touch activity failed", "room", roomID, "err", err)
	}

	slog.Info("user joined room", "room", roomID, "user", s.Username, "count", count)
	return nil
}

// Leave is the manual transition back to idle. No-op when idle already.
func (m *Manager) Leave(_ context.Context, s *Session) {
	room := s.Room
	if room == "" {
		return
	}
	s.Room = ""

	count := m.reg.Leave(room, s.ID)

	m.relay.Broadcast(room, s.ID, event.Message{
		Type:    event.TypeUserLeft,
		Payload: event.UserEventPayload{UserID: s.ID, Username: s.Username},
	})
	// exact count after removal, not a pre-removal snapshot minus one
	m.relay.Broadcast(room, "", event.Message{Type: event.TypeRoomUsersCount, Payload: count})
}

// Disconnect is terminal for the session. A connection that was never joined
// triggers no room-facing side effects.
func (m *Manager) Disconnect(_ context.Context, s *Session, reason string) {
	room := s.Room
	if room == "" {
		return
	}
	s.Room = ""

	count := m.reg.Leave(room, s.ID)

	why := "disconnect"
	if reason == "ping timeout" {
		why = "timeout"
	}

	m.relay.Broadcast(room, s.ID, event.Message{
		Type:    event.TypeUserDisconnect,
		Payload: event.DisconnectedPayload{UserID: s.ID, Username: s.Username, Reason: why},
	})
	// low-level connection-id signal for client-side bookkeeping
	m.relay.Broadcast(room, s.ID, event.Message{Type: event.TypeUserDisconnect, Payload: s.ID})
	m.relay.Broadcast(room, "", event.Message{Type: event.TypeRoomUsersCount, Payload: count})

	slog.Info("user disconnected", "room", room, "user", s.Username, "reason", why, "count", count)
}

// RenameUser updates the session's display name. Ignored when the new name
// is empty or the session is not in a room.
func (m *Manager) RenameUser(s *Session, newUsername string) {
	if newUsername == "" || s.Room == "" {
		return
	}

	old := s.Username
	s.Username = newUsername
	m.reg.UpdateName(s.Room, s.ID, newUsername)

	m.relay.Broadcast(s.Room, s.ID, event.Message{
		Type: event.TypeUsernameChanged,
		Payload: event.UsernameChangedPayload{
			UserID:      s.ID,
			OldUsername: old,
			NewUsername: newUsername,
		},
	})
}

// RoomUsers snapshots the current members of the session's room.
func (m *Manager) RoomUsers(s *Session) []domain.Participant {
	if s.Room == "" {
		return nil
	}
	return m.reg.Members(s.Room)
}
