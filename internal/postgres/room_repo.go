package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomRepository is the adapter over the durable room store: one row per
// room plus an append-only command log ordered by seq.
type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// EnsureExists creates the room if absent. Idempotent and concurrent-safe.
func (r *RoomRepository) EnsureExists(ctx context.Context, roomID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rooms (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, roomID)
	return err
}

// Append adds one command to the room's history. The timestamp is assigned
// by the database at insert time; a failed insert applies nothing.
func (r *RoomRepository) Append(ctx context.Context, roomID string, cmd domain.DrawingCommand) error {
	data, err := json.Marshal(cmd.Data)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO room_commands (room_id, kind, data)
		VALUES ($1, $2, $3)
	`, roomID, string(cmd.Kind), data)
	return err
}

// ReadAll returns the room's commands in append order.
func (r *RoomRepository) ReadAll(ctx context.Context, roomID string) ([]domain.DrawingCommand, error) {
	rows, err := r.db.Query(ctx, `
		SELECT kind, data, created_at
		FROM room_commands
		WHERE room_id = $1
		ORDER BY seq
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DrawingCommand
	for rows.Next() {
		var (
			kind string
			raw  []byte
			ts   time.Time
		)
		if err := rows.Scan(&kind, &raw, &ts); err != nil {
			return nil, err
		}
		cmd := domain.DrawingCommand{Kind: domain.CommandKind(kind), Timestamp: ts}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cmd.Data); err != nil {
				return nil, fmt.Errorf("decode command: %w", err)
			}
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

func (r *RoomRepository) TouchActivity(ctx context.Context, roomID string) error {
	_, err := r.db.Exec(ctx, `UPDATE rooms SET last_activity = now() WHERE id = $1`, roomID)
	return err
}

// Get returns the room document including its full history.
func (r *RoomRepository) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	var rm domain.Room
	err := r.db.QueryRow(ctx, `
		SELECT id, created_at, last_activity FROM rooms WHERE id = $1
	`, roomID).Scan(&rm.ID, &rm.CreatedAt, &rm.LastActivity)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}

	cmds, err := r.ReadAll(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if cmds == nil {
		cmds = []domain.DrawingCommand{}
	}
	rm.DrawingData = cmds
	return &rm, nil
}

// DeleteInactiveBefore removes rooms (and their command logs) whose last
// activity is older than cutoff, skipping any room id in keep.
func (r *RoomRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM rooms
		WHERE last_activity < $1
		  AND NOT (id = ANY($2))
	`, cutoff, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
