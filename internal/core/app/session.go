// # internal/core/app/session.go
package app

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"snapgraph/internal/core/config"
	"snapgraph/internal/core/errors"
	"snapgraph/internal/core/ports"
	"snapgraph/internal/engine/graph"
	"snapgraph/internal/engine/script"
	"snapgraph/internal/shared/observability"
	"snapgraph/internal/shared/util"
)

// Session tracks the latest snapshot of every graph it has seen and turns
// change sets into published snapshots.
type Session struct {
	ID     uuid.UUID
	Config *config.Config

	store    ports.SnapshotStore
	logger   *slog.Logger
	limiters *util.LimiterRegistry

	mu       sync.RWMutex
	latest   map[string]*graph.Snapshot
	policies graph.PolicyRegistry
	retainV  bool
	retainE  bool

	// Per-graph publish serialisation.
	publishMu sync.Map
}

// NewSession wires a session. store may be nil, in which case snapshots live
// only in memory.
func NewSession(cfg *config.Config, store ports.SnapshotStore, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	policies, err := cfg.Builder.Policies()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:       uuid.New(),
		Config:   cfg,
		store:    store,
		logger:   logger,
		limiters: util.NewLimiterRegistry(cfg.Session.BuildRate, cfg.Session.BuildBurst, cfg.Session.LimiterTTL),
		latest:   make(map[string]*graph.Snapshot),
		policies: policies,
		retainV:  cfg.Builder.RetainVertexIDsOrDefault(),
		retainE:  cfg.Builder.RetainEdgeIDsOrDefault(),
	}, nil
}

func (s *Session) Close() {
	s.limiters.Close()
}

func (s *Session) Store() ports.SnapshotStore { return s.store }

// CreateGraph registers version 0 of a new graph. It fails with CONFLICT when
// the name is already known to the session or the store.
func (s *Session) CreateGraph(ctx context.Context, name string, schema graph.Schema) (*graph.Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.CodeValidationError, "graph name must not be empty")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Graph(ctx, name); err == nil {
		return nil, errors.Newf(errors.CodeConflict, "graph %q already exists", name).
			WithContext(errors.CtxGraph, name)
	} else if !errors.IsCode(err, errors.CodeNotFound) {
		return nil, err
	}

	snap := graph.NewEmptySnapshot(name, schema)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.latest[name]; ok {
		return nil, errors.Newf(errors.CodeConflict, "graph %q already exists", name).
			WithContext(errors.CtxGraph, name)
	}
	s.latest[name] = snap
	s.logger.Info("graph created", "graph", name, "vertex_id_type", schema.VertexIDType.String(), "edge_id_type", schema.EdgeIDType.String())
	return snap, nil
}

// Graph returns the latest snapshot of name, loading it from the store when
// the session has not seen it yet.
func (s *Session) Graph(ctx context.Context, name string) (*graph.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.latest[name]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if s.store == nil {
		return nil, errors.Newf(errors.CodeNotFound, "graph %q not found", name).
			WithContext(errors.CtxGraph, name)
	}

	loaded, err := s.store.Load(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[name]; ok && cur.Version() >= loaded.Version() {
		return cur, nil
	}
	s.latest[name] = loaded
	return loaded, nil
}

// Graphs lists the graph names registered in this session.
func (s *Session) Graphs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.latest))
	for name := range s.latest {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateChangeSet returns a change set over base carrying the session's
// current default policies and id retention.
func (s *Session) CreateChangeSet(base *graph.Snapshot) *graph.ChangeSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return graph.NewChangeSet(base,
		graph.WithPolicies(s.policies),
		graph.WithRetainIDs(s.retainV, s.retainE),
		graph.WithLogger(s.logger.With("graph", base.Name())),
	)
}

// Publish builds cs and registers the result as the latest snapshot of its
// graph. A change set whose base is no longer the latest version is rejected
// with CONFLICT.
func (s *Session) Publish(ctx context.Context, cs *graph.ChangeSet) (*graph.Snapshot, error) {
	name := cs.Base().Name()
	if err := s.admit(ctx, name); err != nil {
		return nil, err
	}
	lock := s.graphLock(name)
	lock.Lock()
	defer lock.Unlock()
	return s.publishLocked(ctx, cs)
}

func (s *Session) admit(ctx context.Context, name string) error {
	waitStart := time.Now()
	if err := s.limiters.Get(name).Wait(ctx, 1); err != nil {
		return errors.AddContext(err, errors.CtxOperation, "build_admission")
	}
	observability.BuildAdmissionWaitSeconds.Observe(time.Since(waitStart).Seconds())
	return nil
}

// publishLocked expects graphLock(name) to be held. Only an unregistered
// version-0 root may publish to a graph the session cannot find.
func (s *Session) publishLocked(ctx context.Context, cs *graph.ChangeSet) (snap *graph.Snapshot, err error) {
	base := cs.Base()
	name := base.Name()

	ctx, span := observability.Tracer.Start(ctx, "app.Publish")
	span.SetAttributes(attribute.String("graph", name), attribute.Int64("base_version", base.Version()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cur, err := s.Graph(ctx, name)
	switch {
	case err == nil:
		if cur.ID() != base.ID() {
			return nil, errors.Newf(errors.CodeConflict, "change set base %s v%d is stale, latest is v%d", name, base.Version(), cur.Version()).
				WithContext(errors.CtxGraph, name)
		}
	case errors.IsCode(err, errors.CodeNotFound):
		if base.Version() > 0 {
			return nil, errors.Newf(errors.CodeConflict, "change set base %s v%d is stale, graph no longer exists", name, base.Version()).
				WithContext(errors.CtxGraph, name)
		}
	default:
		return nil, err
	}

	snap, err = cs.BuildNewSnapshot(ctx)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxGraph, name)
	}
	if s.store != nil {
		if err := s.store.Save(ctx, snap); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.latest[name] = snap
	s.mu.Unlock()

	observability.SnapshotVertices.WithLabelValues(name).Set(float64(snap.VertexCount()))
	observability.SnapshotEdges.WithLabelValues(name).Set(float64(snap.EdgeCount()))
	s.logger.Info("snapshot published",
		"graph", name,
		"version", snap.Version(),
		"vertices", snap.VertexCount(),
		"edges", snap.EdgeCount(),
		"changes", cs.Len(),
		"digest", snap.Digest())
	return snap, nil
}

// ApplyScript stages a change script against the latest version of its graph
// and publishes the result. A missing graph starts from an empty root with the
// script's schema; the root is only registered through a successful publish.
// The graph stays locked from the base read to the save, so concurrent scripts
// on one graph apply one after another instead of conflicting.
func (s *Session) ApplyScript(ctx context.Context, sc *script.Script) (*graph.Snapshot, error) {
	name := strings.TrimSpace(sc.Graph)
	if name == "" {
		return nil, errors.New(errors.CodeValidationError, "graph name must not be empty")
	}
	if err := s.admit(ctx, name); err != nil {
		return nil, err
	}
	lock := s.graphLock(name)
	lock.Lock()
	defer lock.Unlock()

	base, err := s.Graph(ctx, name)
	if errors.IsCode(err, errors.CodeNotFound) {
		schema, serr := sc.GraphSchema()
		if serr != nil {
			return nil, serr
		}
		if serr := schema.Validate(); serr != nil {
			return nil, serr
		}
		base, err = graph.NewEmptySnapshot(name, schema), nil
	}
	if err != nil {
		return nil, err
	}

	cs := s.CreateChangeSet(base)
	if err := sc.Apply(cs); err != nil {
		if sc.Path != "" {
			return nil, errors.AddContext(err, "script", sc.Path)
		}
		return nil, err
	}
	s.logger.Debug("change script staged", "graph", name, "script", sc.Path, "pending", cs.String())
	return s.publishLocked(ctx, cs)
}

// DropGraph forgets a graph and removes every stored version of it.
func (s *Session) DropGraph(ctx context.Context, name string) (int64, error) {
	lock := s.graphLock(name)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	_, known := s.latest[name]
	delete(s.latest, name)
	s.mu.Unlock()

	observability.SnapshotVertices.DeleteLabelValues(name)
	observability.SnapshotEdges.DeleteLabelValues(name)

	if s.store == nil {
		if !known {
			return 0, errors.Newf(errors.CodeNotFound, "graph %q not found", name).
				WithContext(errors.CtxGraph, name)
		}
		return 1, nil
	}
	n, err := s.store.Delete(ctx, name)
	if err != nil {
		return 0, err
	}
	if n == 0 && !known {
		return 0, errors.Newf(errors.CodeNotFound, "graph %q not found", name).
			WithContext(errors.CtxGraph, name)
	}
	return n, nil
}

// UpdateDefaults swaps the builder defaults used by future change sets.
// Change sets created earlier keep their own copies.
func (s *Session) UpdateDefaults(b config.Builder) error {
	policies, err := b.Policies()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = policies
	s.retainV = b.RetainVertexIDsOrDefault()
	s.retainE = b.RetainEdgeIDsOrDefault()
	s.logger.Info("builder defaults updated", "policies", policies.Map())
	return nil
}

func (s *Session) graphLock(name string) *sync.Mutex {
	v, _ := s.publishMu.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}
