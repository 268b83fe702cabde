package app

import (
	"context"
	stdErrors "errors"
	"io"
	"time"

	"snapgraph/internal/core/ports"
	"snapgraph/internal/shared/observability"
)

const defaultFlushInterval = 100 * time.Millisecond

// ApplyWorker drains an apply queue on a single goroutine, so scripts are
// applied one batch at a time in the order they were queued.
type ApplyWorker struct {
	session   *Session
	queue     ports.ApplyQueue
	batchSize int
	flush     time.Duration
	onResult  func(ApplyResult)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewApplyWorker creates a stopped worker. onResult, when non-nil, is called
// on the worker goroutine for every applied script.
func NewApplyWorker(s *Session, q ports.ApplyQueue, onResult func(ApplyResult)) *ApplyWorker {
	batchSize := s.Config.Watch.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	return &ApplyWorker{
		session:   s,
		queue:     q,
		batchSize: batchSize,
		flush:     defaultFlushInterval,
		onResult:  onResult,
	}
}

func (w *ApplyWorker) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
}

// Enqueue offers paths to the queue. A path the queue cannot take is applied
// synchronously so that no change is lost.
func (w *ApplyWorker) Enqueue(ctx context.Context, paths []string) {
	for _, path := range paths {
		result := w.queue.Enqueue(ports.ApplyRequest{Path: path, QueuedAt: time.Now()})
		observability.ApplyQueueEnqueuedTotal.WithLabelValues(string(result)).Inc()
		if result == ports.EnqueueDropped {
			w.session.logger.Warn("apply queue full, applying inline", "script", path)
			w.apply(ctx, []ports.ApplyRequest{{Path: path, QueuedAt: time.Now()}})
		}
	}
	observability.ApplyQueueDepth.Set(float64(w.queue.Len()))
}

func (w *ApplyWorker) run(ctx context.Context) {
	defer close(w.done)
	for ctx.Err() == nil {
		batch, err := w.queue.DequeueBatch(ctx, w.batchSize, w.flush)
		if len(batch) > 0 {
			w.apply(ctx, batch)
		}
		switch {
		case err == nil:
		case stdErrors.Is(err, io.EOF), stdErrors.Is(err, context.Canceled):
			return
		default:
			w.session.logger.Warn("apply queue dequeue failed", "error", err)
		}
	}
}

func (w *ApplyWorker) apply(ctx context.Context, batch []ports.ApplyRequest) {
	started := time.Now()
	paths := make([]string, len(batch))
	for i, req := range batch {
		paths[i] = req.Path
		w.session.logger.Debug("applying queued script", "script", req.Path, "queued_for", started.Sub(req.QueuedAt))
	}

	for _, res := range w.session.ApplyFiles(ctx, paths) {
		if res.Err != nil {
			observability.ScriptsAppliedTotal.WithLabelValues("error").Inc()
		} else {
			observability.ScriptsAppliedTotal.WithLabelValues("ok").Inc()
		}
		if w.onResult != nil {
			w.onResult(res)
		}
	}
	observability.ApplyBatchSeconds.Observe(time.Since(started).Seconds())
	observability.ApplyQueueDepth.Set(float64(w.queue.Len()))
}

// Stop ends the run loop, applies whatever is still queued with ctx and
// closes the queue.
func (w *ApplyWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.done != nil {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		w.done = nil
	}
	if err := w.queue.Close(); err != nil {
		return err
	}
	for {
		batch, err := w.queue.DequeueBatch(ctx, w.batchSize, 0)
		if len(batch) > 0 {
			w.apply(ctx, batch)
		}
		if err != nil {
			if stdErrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(batch) == 0 {
			return nil
		}
	}
}
