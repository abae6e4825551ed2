package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/cwrk-planet/board-service/internal/event"
	"github.com/cwrk-planet/board-service/internal/presence"
	"github.com/cwrk-planet/board-service/internal/relay"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server is the connection gateway: it accepts websockets, decodes inbound
// events and dispatches them to the presence manager and the event relay.
type Server struct {
	upgrader websocket.Upgrader
	presence *presence.Manager
	relay    *relay.Relay

	pingEvery time.Duration
	newRand   func() *rand.Rand
}

func NewServer(pm *presence.Manager, rl *relay.Relay) *Server {
	return &Server{
		presence: pm,
		relay:    rl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// WS endpoint: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn)
	sess := presence.NewSession(uuid.NewString(), c, s.newRand())
	slog.Info("socket connected", "conn", sess.ID)

	go c.writeLoop(s.pingEvery)
	s.readLoop(r.Context(), c, sess)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, sess *presence.Session) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			slog.Info("socket disconnected", "conn", sess.ID, "err", err)
			s.presence.Disconnect(context.Background(), sess, disconnectReason(err))
			return
		}

		var msg event.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.dispatch(ctx, c, sess, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, sess *presence.Session, msg event.Message) {
	switch msg.Type {
	case event.TypeJoinRoom:
		var p event.JoinRoomPayload
		if event.Decode(msg.Payload, &p) != nil {
			return
		}
		if err := s.presence.Join(ctx, sess, p.RoomID, p.UserData); err != nil {
			_ = c.Send(event.Message{Type: event.TypeRoomError, Payload: err.Error()})
		}

	case event.TypeLeaveRoom:
		var p event.LeaveRoomPayload
		if event.Decode(msg.Payload, &p) != nil {
			return
		}
		if p.RoomID != "" && p.RoomID == sess.Room {
			s.presence.Leave(ctx, sess)
		}

	case event.TypeUpdateUsername:
		if name, ok := msg.Payload.(string); ok {
			s.presence.RenameUser(sess, name)
		}

	case event.TypeGetRoomUsers:
		if users := s.presence.RoomUsers(sess); users != nil {
			_ = c.Send(event.Message{Type: event.TypeRoomUsersList, Payload: users})
		}

	case event.TypeCursorMove, event.TypeDrawStart, event.TypeDrawMove,
		event.TypeDrawEnd, event.TypeClearCanvas:
		payload, _ := msg.Payload.(map[string]any)
		s.relay.Route(relay.Origin{ID: sess.ID, Color: sess.Color, Room: sess.Room}, msg.Type, payload)
	}
}

// disconnectReason maps a read error to the presence-level reason. A read
// deadline expiry means pings went unanswered.
func disconnectReason(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "ping timeout"
	}
	return "disconnect"
}
