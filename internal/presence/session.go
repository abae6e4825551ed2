package presence

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/event"
)

// Session is one connection's presence state. It is owned by that
// connection's gateway; the manager mutates it only from the gateway's
// goroutine, so no locking is needed here.
type Session struct {
	ID       string
	Username string
	Color    string
	Room     string // "" while idle
	JoinedAt time.Time

	conn event.Sender
}

// NewSession derives the default name and stable color for a freshly
// accepted connection. rng is injected so tests can be deterministic.
func NewSession(id string, conn event.Sender, rng *rand.Rand) *Session {
	short := id
	if len(short) > 6 {
		short = short[:6]
	}
	return &Session{
		ID:       id,
		Username: "User_" + short,
		Color:    fmt.Sprintf("hsl(%d, 70%%, 50%%)", rng.Intn(360)),
		conn:     conn,
	}
}

func (s *Session) participant() domain.Participant {
	return domain.Participant{
		ID:       s.ID,
		Username: s.Username,
		Color:    s.Color,
		JoinedAt: s.JoinedAt,
	}
}

func (s *Session) send(msg event.Message) {
	if s.conn != nil {
		_ = s.conn.Send(msg)
	}
}
