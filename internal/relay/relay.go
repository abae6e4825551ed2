package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/event"
)

// Members is the slice of the Session Registry the relay needs for fan-out.
type Members interface {
	Senders(roomID, excludeID string) []event.Sender
}

// Store is the durable side of the relay. Failures are logged and swallowed;
// broadcast delivery never depends on persistence succeeding.
type Store interface {
	Append(ctx context.Context, roomID string, cmd domain.DrawingCommand) error
	TouchActivity(ctx context.Context, roomID string) error
}

// Origin identifies the connection an inbound event came from.
type Origin struct {
	ID    string
	Color string
	Room  string // "" when the connection is not joined anywhere
}

// Relay applies the per-event broadcast policy and funnels durable commands
// into one appender per room, so a room's history order equals the order
// events reached the relay.
type Relay struct {
	members Members
	store   Store

	mu        sync.Mutex
	appenders map[string]*appender
	idleAfter time.Duration
}

func New(members Members, store Store) *Relay {
	return &Relay{
		members:   members,
		store:     store,
		appenders: make(map[string]*appender),
		idleAfter: 2 * time.Minute,
	}
}

// Broadcast delivers msg to every room member except excludeID ("" addresses
// the whole room). Best-effort per destination.
func (r *Relay) Broadcast(roomID, excludeID string, msg event.Message) {
	for _, s := range r.members.Senders(roomID, excludeID) {
		_ = s.Send(msg)
	}
}

// Route dispatches one inbound drawing/cursor event. Events from a connection
// with no current room are dropped silently.
func (r *Relay) Route(from Origin, typ string, payload map[string]any) {
	if from.Room == "" {
		return
	}

	switch typ {
	case event.TypeCursorMove:
		if payload == nil {
			return
		}
		r.Broadcast(from.Room, from.ID, event.Message{
			Type: event.TypeCursorUpdate,
			Payload: map[string]any{
				"socketId": from.ID,
				"x":        toNumber(payload["x"]),
				"y":        toNumber(payload["y"]),
				"color":    stringOr(payload["color"], from.Color),
			},
		})

	case event.TypeDrawStart, event.TypeDrawMove:
		if payload == nil {
			return
		}
		r.Broadcast(from.Room, from.ID, event.Message{
			Type:    typ,
			Payload: annotate(payload, from.ID),
		})

	case event.TypeDrawEnd:
		if payload == nil {
			return
		}
		data := annotate(payload, from.ID)
		if _, ok := data["points"].([]any); !ok {
			data["points"] = []any{}
		}
		data["color"] = stringOr(data["color"], from.Color)
		if w := toNumber(data["strokeWidth"]); w != 0 {
			data["strokeWidth"] = w
		} else {
			data["strokeWidth"] = float64(2)
		}
		r.Broadcast(from.Room, from.ID, event.Message{Type: typ, Payload: data})
		r.persist(from.Room, domain.DrawingCommand{Kind: domain.CommandStroke, Data: data})

	case event.TypeClearCanvas:
		// echoed back to the sender as well
		r.Broadcast(from.Room, "", event.Message{Type: event.TypeClearCanvas})
		r.persist(from.Room, domain.DrawingCommand{
			Kind: domain.CommandClear,
			Data: map[string]any{"clearedBy": from.ID},
		})
	}
}

// annotate copies the payload and tags it with the sender's connection id.
func annotate(payload map[string]any, socketID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["socketId"] = socketID
	return out
}

func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// --- per-room durable appenders ---

type appender struct {
	roomID string
	ch     chan domain.DrawingCommand
}

// persist enqueues cmd for the room's appender. Creation, pruning and the
// enqueue itself all happen under r.mu, so the channel order is exactly the
// order persist was called in; the send never blocks (a full buffer means the
// store has been down for a while and the command is dropped, logged).
func (r *Relay) persist(roomID string, cmd domain.DrawingCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appenders[roomID]
	if !ok {
		a = &appender{roomID: roomID, ch: make(chan domain.DrawingCommand, 256)}
		r.appenders[roomID] = a
		go r.drain(a)
	}

	select {
	case a.ch <- cmd:
	default:
		slog.Warn("command buffer full, dropping durable write",
			"room", roomID, "kind", cmd.Kind)
	}
}

func (r *Relay) drain(a *appender) {
	idle := time.NewTimer(r.idleAfter)
	defer idle.Stop()

	for {
		select {
		case cmd := <-a.ch:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.store.Append(ctx, a.roomID, cmd); err != nil {
				slog.Warn("append command failed", "room", a.roomID, "kind", cmd.Kind, "err", err)
			} else if err := r.store.TouchActivity(ctx, a.roomID); err != nil {
				slog.Debug("touch activity failed", "room", a.roomID, "err", err)
			}
			cancel()

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.idleAfter)

		case <-idle.C:
			r.mu.Lock()
			if len(a.ch) == 0 {
				delete(r.appenders, a.roomID)
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
			idle.Reset(r.idleAfter)
		}
	}
}
