package app

import (
	"context"
	stdErrors "errors"
	"os"
	"time"

	"snapgraph/internal/core/watcher"
	"snapgraph/internal/data/queue"
	"snapgraph/internal/engine/graph"
	"snapgraph/internal/engine/script"
)

const drainTimeout = 10 * time.Second

// ApplyResult is the outcome of applying one change script file.
type ApplyResult struct {
	Path     string
	Snapshot *graph.Snapshot
	Err      error
}

// ApplyFiles loads and applies scripts in the given order. Files that no
// longer exist are skipped; a failing script does not stop the rest.
func (s *Session) ApplyFiles(ctx context.Context, paths []string) []ApplyResult {
	results := make([]ApplyResult, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			results = append(results, ApplyResult{Path: path, Err: ctx.Err()})
			continue
		}
		sc, err := script.Load(path)
		if stdErrors.Is(err, os.ErrNotExist) {
			s.logger.Debug("change script removed", "script", path)
			continue
		}
		if err != nil {
			s.logger.Error("change script rejected", "script", path, "error", err)
			results = append(results, ApplyResult{Path: path, Err: err})
			continue
		}
		snap, err := s.ApplyScript(ctx, sc)
		if err != nil {
			s.logger.Error("change script failed", "script", path, "graph", sc.Graph, "error", err)
		}
		results = append(results, ApplyResult{Path: path, Snapshot: snap, Err: err})
	}
	return results
}

// ScriptWatcher is a running watch: a file watcher feeding an apply worker.
type ScriptWatcher struct {
	watcher *watcher.Watcher
	worker  *ApplyWorker
}

// StartWatcher applies scripts under paths whenever their content changes.
// Changed paths are queued so a slow build never blocks event delivery.
func (s *Session) StartWatcher(ctx context.Context, paths []string) (*ScriptWatcher, error) {
	worker := NewApplyWorker(s, queue.NewMemoryQueue(s.Config.Watch.QueueCapacity), nil)
	w, err := watcher.NewWatcher(
		s.Config.Watch.Debounce,
		s.Config.Exclude.Dirs,
		s.Config.Exclude.Files,
		func(changed []string) {
			worker.Enqueue(ctx, changed)
		},
	)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(paths); err != nil {
		_ = w.Close()
		return nil, err
	}
	worker.Start(ctx)
	s.logger.Info("watching change scripts", "paths", paths)
	return &ScriptWatcher{watcher: w, worker: worker}, nil
}

// SetDebounce applies to changes observed after the call.
func (sw *ScriptWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		sw.watcher.SetDebounce(d)
	}
}

// Close stops event delivery first, then drains the apply queue.
func (sw *ScriptWatcher) Close() error {
	werr := sw.watcher.Close()
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := sw.worker.Stop(ctx); err != nil {
		return err
	}
	return werr
}
