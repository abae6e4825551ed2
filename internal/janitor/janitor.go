package janitor

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time, keep []string) (int64, error)
}

// LiveRooms reports rooms that currently have connected members; those are
// never reaped regardless of their activity timestamp.
type LiveRooms interface {
	Rooms() []string
}

// Janitor periodically deletes rooms whose last activity is older than
// maxAge.
type Janitor struct {
	store    Store
	live     LiveRooms
	interval time.Duration
	maxAge   time.Duration
}

func New(store Store, live LiveRooms, interval, maxAge time.Duration) *Janitor {
	return &Janitor{store: store, live: live, interval: interval, maxAge: maxAge}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-j.maxAge)
	n, err := j.store.DeleteInactiveBefore(ctx, cutoff, j.live.Rooms())
	if err != nil {
		slog.Warn("room cleanup failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("cleaned up inactive rooms", "count", n)
	}
}
