package ports

import (
	"context"
	"time"

	"snapgraph/internal/data/snapshots"
	"snapgraph/internal/engine/graph"
)

// SnapshotStore abstracts snapshot persistence for sessions and the CLI.
type SnapshotStore interface {
	Save(ctx context.Context, snap *graph.Snapshot) error
	Load(ctx context.Context, name string, version int64) (*graph.Snapshot, error)
	List(ctx context.Context, pattern string) ([]snapshots.Summary, error)
	History(ctx context.Context, name string) ([]snapshots.Summary, error)
	Delete(ctx context.Context, name string) (int64, error)
	Ping(ctx context.Context) error
}

// ApplyRequest asks the apply worker to (re)apply one change script.
type ApplyRequest struct {
	Path     string
	QueuedAt time.Time
}

type EnqueueResult string

const (
	EnqueueAccepted  EnqueueResult = "accepted"
	EnqueueCoalesced EnqueueResult = "coalesced"
	EnqueueDropped   EnqueueResult = "dropped"
)

// ApplyQueue buffers change script paths between the watcher and the apply
// worker. DequeueBatch returns io.EOF once the queue is closed and drained.
type ApplyQueue interface {
	Enqueue(req ApplyRequest) EnqueueResult
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]ApplyRequest, error)
	Len() int
	Close() error
}

var _ SnapshotStore = (*snapshots.Store)(nil)
