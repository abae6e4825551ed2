package presence

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/event"
	"github.com/cwrk-planet/board-service/internal/registry"
	"github.com/cwrk-planet/board-service/internal/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []event.Message
}

func (r *recorder) Send(m event.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) byType(t string) []event.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Message
	for _, m := range r.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) lastCount(t *testing.T) int {
	msgs := r.byType(event.TypeRoomUsersCount)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Payload.(int)
}

type fakeStore struct {
	mu      sync.Mutex
	ensured []string
	touched []string
	history map[string][]domain.DrawingCommand
	readErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{history: make(map[string][]domain.DrawingCommand)}
}

func (s *fakeStore) EnsureExists(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, roomID)
	return nil
}

func (s *fakeStore) ReadAll(_ context.Context, roomID string) ([]domain.DrawingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.history[roomID], nil
}

func (s *fakeStore) TouchActivity(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, roomID)
	return nil
}

func (s *fakeStore) Append(_ context.Context, roomID string, cmd domain.DrawingCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[roomID] = append(s.history[roomID], cmd)
	return nil
}

func setup(t *testing.T) (*Manager, *registry.Registry, *fakeStore) {
	t.Helper()
	reg := registry.New()
	store := newFakeStore()
	return NewManager(reg, relay.New(reg, store), store), reg, store
}

func newSession(id string, conn event.Sender) *Session {
	return NewSession(id, conn, rand.New(rand.NewSource(1)))
}

func TestJoinNotifiesRoom(t *testing.T) {
	m, reg, store := setup(t)
	ctx := context.Background()

	c1, c2 := &recorder{}, &recorder{}
	s1 := newSession("conn-1", c1)
	s2 := newSession("conn-2", c2)

	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{Username: "bob"}))

	assert.Equal(t, "abc123", s2.Room)
	assert.Equal(t, 2, reg.Count("abc123"))

	// the whole room sees the new count
	assert.Equal(t, 2, c1.lastCount(t))
	assert.Equal(t, 2, c2.lastCount(t))

	// only the others see the join notifications
	joined := c1.byType(event.TypeUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, event.UserEventPayload{UserID: "conn-2", Username: "bob"}, joined[0].Payload)
	assert.Empty(t, c2.byType(event.TypeUserJoined))

	connected := c1.byType(event.TypeUserConnected)
	require.Len(t, connected, 1)
	p := connected[0].Payload.(event.UserConnectedPayload)
	assert.Equal(t, "conn-2", p.ConnectionID)
	assert.Equal(t, s2.Color, p.Color)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"abc123", "abc123"}, store.ensured)
	assert.Equal(t, []string{"abc123", "abc123"}, store.touched)
}

func TestJoinDefaultsUsername(t *testing.T) {
	m, _, _ := setup(t)
	s := newSession("abcdef-123", &recorder{})

	require.NoError(t, m.Join(context.Background(), s, "abc123", event.UserData{}))
	assert.Equal(t, "User_abcdef", s.Username)
}

func TestJoinDeliversHistoryToJoinerOnly(t *testing.T) {
	m, _, store := setup(t)
	ctx := context.Background()

	store.history["abc123"] = []domain.DrawingCommand{
		{Kind: domain.CommandStroke, Data: map[string]any{"points": []any{}}},
		{Kind: domain.CommandClear}, // no payload, filtered out
		{Kind: domain.CommandClear, Data: map[string]any{"clearedBy": "x"}},
	}

	c1, c2 := &recorder{}, &recorder{}
	require.NoError(t, m.Join(ctx, newSession("conn-1", c1), "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, newSession("conn-2", c2), "abc123", event.UserData{}))

	got := c2.byType(event.TypeLoadDrawingData)
	require.Len(t, got, 1)
	cmds := got[0].Payload.([]domain.DrawingCommand)
	assert.Len(t, cmds, 2)

	// only ever sent to the joiner
	assert.Len(t, c1.byType(event.TypeLoadDrawingData), 1) // its own join
}

func TestJoinInvalidRoom(t *testing.T) {
	m, reg, store := setup(t)
	c := &recorder{}
	s := newSession("conn-1", c)

	err := m.Join(context.Background(), s, "  ", event.UserData{})
	require.ErrorIs(t, err, domain.ErrInvalidRoom)

	assert.Empty(t, s.Room)
	assert.Empty(t, reg.Rooms())
	c.mu.Lock()
	assert.Empty(t, c.msgs)
	c.mu.Unlock()
	store.mu.Lock()
	assert.Empty(t, store.ensured)
	store.mu.Unlock()
}

func TestRejoinMovesRooms(t *testing.T) {
	m, reg, _ := setup(t)
	ctx := context.Background()

	watcher := &recorder{}
	require.NoError(t, m.Join(ctx, newSession("conn-0", watcher), "roomA1", event.UserData{}))

	c := &recorder{}
	s := newSession("conn-1", c)
	require.NoError(t, m.Join(ctx, s, "roomA1", event.UserData{Username: "carol"}))
	require.NoError(t, m.Join(ctx, s, "roomB2", event.UserData{}))

	assert.Equal(t, "roomB2", s.Room)
	assert.Equal(t, 1, reg.Count("roomA1"))
	assert.Equal(t, 1, reg.Count("roomB2"))

	left := watcher.byType(event.TypeUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, event.UserEventPayload{UserID: "conn-1", Username: "carol"}, left[0].Payload)
	assert.Equal(t, 1, watcher.lastCount(t))
}

func TestRejoinSameRoomDoesNotLeave(t *testing.T) {
	m, reg, _ := setup(t)
	ctx := context.Background()

	watcher := &recorder{}
	require.NoError(t, m.Join(ctx, newSession("conn-0", watcher), "abc123", event.UserData{}))

	s := newSession("conn-1", &recorder{})
	require.NoError(t, m.Join(ctx, s, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s, "abc123", event.UserData{}))

	assert.Empty(t, watcher.byType(event.TypeUserLeft))
	assert.Equal(t, 2, reg.Count("abc123"))
}

func TestLeave(t *testing.T) {
	m, reg, _ := setup(t)
	ctx := context.Background()

	c1 := &recorder{}
	s1 := newSession("conn-1", c1)
	s2 := newSession("conn-2", &recorder{})
	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{Username: "bob"}))

	m.Leave(ctx, s2)

	assert.Empty(t, s2.Room)
	assert.Equal(t, 1, reg.Count("abc123"))

	left := c1.byType(event.TypeUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, event.UserEventPayload{UserID: "conn-2", Username: "bob"}, left[0].Payload)
	// count reflects the state after removal
	assert.Equal(t, 1, c1.lastCount(t))

	// leaving twice is a no-op
	m.Leave(ctx, s2)
	assert.Len(t, c1.byType(event.TypeUserLeft), 1)
}

func TestDisconnectTimeout(t *testing.T) {
	m, reg, _ := setup(t)
	ctx := context.Background()

	c1, c2 := &recorder{}, &recorder{}
	s1 := newSession("conn-1", c1)
	s2 := newSession("conn-2", c2)
	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{Username: "bob"}))

	m.Disconnect(ctx, s2, "ping timeout")

	assert.Equal(t, 1, reg.Count("abc123"))

	msgs := c1.byType(event.TypeUserDisconnect)
	require.Len(t, msgs, 2)
	assert.Equal(t, event.DisconnectedPayload{UserID: "conn-2", Username: "bob", Reason: "timeout"},
		msgs[0].Payload)
	assert.Equal(t, "conn-2", msgs[1].Payload)
	assert.Equal(t, 1, c1.lastCount(t))

	// the disconnected peer hears nothing
	assert.Empty(t, c2.byType(event.TypeUserDisconnect))
}

func TestDisconnectGenericReason(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	c1 := &recorder{}
	s1 := newSession("conn-1", c1)
	s2 := newSession("conn-2", &recorder{})
	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{}))

	m.Disconnect(ctx, s2, "transport error")

	msgs := c1.byType(event.TypeUserDisconnect)
	require.Len(t, msgs, 2)
	assert.Equal(t, "disconnect", msgs[0].Payload.(event.DisconnectedPayload).Reason)
}

func TestDisconnectWhileIdle(t *testing.T) {
	m, reg, store := setup(t)

	s := newSession("conn-1", &recorder{})
	m.Disconnect(context.Background(), s, "ping timeout")

	assert.Empty(t, reg.Rooms())
	store.mu.Lock()
	assert.Empty(t, store.touched)
	store.mu.Unlock()
}

func TestCountSettlesAfterChurn(t *testing.T) {
	m, reg, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newSession(fmt.Sprintf("conn-%d", i), &recorder{})
			assert.NoError(t, m.Join(ctx, s, "abc123", event.UserData{}))
			if i%2 == 0 {
				m.Leave(ctx, s)
			} else {
				m.Disconnect(ctx, s, "disconnect")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Count("abc123"))
}

func TestRenameUser(t *testing.T) {
	m, reg, _ := setup(t)
	ctx := context.Background()

	c1 := &recorder{}
	s1 := newSession("conn-1", c1)
	s2 := newSession("conn-2", &recorder{})
	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{Username: "bob"}))

	m.RenameUser(s2, "robert")

	assert.Equal(t, "robert", s2.Username)

	changed := c1.byType(event.TypeUsernameChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, event.UsernameChangedPayload{
		UserID:      "conn-2",
		OldUsername: "bob",
		NewUsername: "robert",
	}, changed[0].Payload)

	// registry snapshot follows
	var found bool
	for _, p := range reg.Members("abc123") {
		if p.ID == "conn-2" {
			found = true
			assert.Equal(t, "robert", p.Username)
		}
	}
	assert.True(t, found)
}

func TestRenameIgnoredWhenEmptyOrIdle(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	c1 := &recorder{}
	s1 := newSession("conn-1", c1)
	s2 := newSession("conn-2", &recorder{})
	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{Username: "bob"}))

	m.RenameUser(s2, "")
	assert.Equal(t, "bob", s2.Username)
	assert.Empty(t, c1.byType(event.TypeUsernameChanged))

	idle := newSession("conn-3", &recorder{})
	m.RenameUser(idle, "ghost")
	assert.Empty(t, c1.byType(event.TypeUsernameChanged))
}

func TestRoomUsers(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	s1 := newSession("conn-1", &recorder{})
	s2 := newSession("conn-2", &recorder{})
	require.NoError(t, m.Join(ctx, s1, "abc123", event.UserData{Username: "alice"}))
	require.NoError(t, m.Join(ctx, s2, "abc123", event.UserData{Username: "bob"}))

	users := m.RoomUsers(s1)
	assert.Len(t, users, 2)

	idle := newSession("conn-3", &recorder{})
	assert.Nil(t, m.RoomUsers(idle))
}

func TestHistoryReadFailureIsNonFatal(t *testing.T) {
	m, reg, store := setup(t)
	store.readErr = errors.New("store down")

	c := &recorder{}
	s := newSession("conn-1", c)
	require.NoError(t, m.Join(context.Background(), s, "abc123", event.UserData{}))

	assert.Equal(t, 1, reg.Count("abc123"))
	assert.Empty(t, c.byType(event.TypeLoadDrawingData))
	assert.Empty(t, c.byType(event.TypeRoomError))
}
