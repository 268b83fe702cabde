// # internal/data/snapshots/store.go
package snapshots

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
	"snapgraph/internal/shared/observability"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	defaultCacheSize   = 64
	defaultBusyTimeout = 2 * time.Second
)

// Summary describes one persisted snapshot without its elements.
type Summary struct {
	ID          uuid.UUID
	ParentID    uuid.UUID
	Name        string
	Version     int64
	CreatedAt   time.Time
	Digest      string
	VertexCount int
	EdgeCount   int
}

type cacheKey struct {
	name    string
	version int64
}

type Store struct {
	path  string
	db    *sql.DB
	mu    sync.Mutex
	cache *LRUCache[cacheKey, *graph.Snapshot]
}

type options struct {
	cacheSize   int
	busyTimeout time.Duration
}

type Option func(*options)

// WithCacheSize bounds the number of loaded snapshots kept in memory.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

func Open(path string, opts ...Option) (*Store, error) {
	o := options{cacheSize: defaultCacheSize, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.busyTimeout <= 0 {
		o.busyTimeout = defaultBusyTimeout
	}

	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("snapshot store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("snapshot store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot store directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, o.busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite snapshot store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, openError("ping", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, openError("initialize sqlite schema", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db, cache: NewLRUCache[cacheKey, *graph.Snapshot](o.cacheSize)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save persists snap. Saving the same graph version twice is a no-op when the
// content digests match and a CONFLICT otherwise.
func (s *Store) Save(ctx context.Context, snap *graph.Snapshot) (err error) {
	ctx, done := observe(ctx, "save", attribute.String("graph", snap.Name()), attribute.Int64("version", snap.Version()))
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := snap.Digest()
	schemaJSON, err := encodeSchema(snap.Schema())
	if err != nil {
		return err
	}

	inserted := false
	err = s.withRetry(ctx, "save snapshot", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var existing string
		err = tx.QueryRowContext(ctx,
			`SELECT digest FROM snapshots WHERE graph_name = ? AND version = ?`,
			snap.Name(), snap.Version()).Scan(&existing)
		switch {
		case err == nil:
			if existing == digest {
				return nil
			}
			return errors.Newf(errors.CodeConflict, "graph %q version %d already stored with different content", snap.Name(), snap.Version()).
				WithContext(errors.CtxGraph, snap.Name())
		case !stdErrors.Is(err, sql.ErrNoRows):
			return err
		}

		parent := ""
		if snap.ParentID() != uuid.Nil {
			parent = snap.ParentID().String()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO snapshots (id, graph_name, version, parent_id, created_at_utc, schema_json, vertex_count, edge_count, digest)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID().String(), snap.Name(), snap.Version(), parent,
			snap.CreatedAt().UTC().Format(time.RFC3339Nano), schemaJSON,
			snap.VertexCount(), snap.EdgeCount(), digest,
		); err != nil {
			return err
		}
		if err := insertElements(ctx, tx, snap); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil || !inserted {
		return err
	}
	s.cache.Put(cacheKey{snap.Name(), snap.Version()}, snap)
	return nil
}

func insertElements(ctx context.Context, tx *sql.Tx, snap *graph.Snapshot) error {
	vstmt, err := tx.PrepareContext(ctx, `INSERT INTO vertices (snapshot_id, element_id, labels_json, props_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer vstmt.Close()
	for _, v := range snap.Vertices() {
		labels, err := encodeLabels(v.Labels())
		if err != nil {
			return err
		}
		props, err := encodeProps(v.Properties())
		if err != nil {
			return err
		}
		if _, err := vstmt.ExecContext(ctx, snap.ID().String(), v.ID().String(), labels, props); err != nil {
			return fmt.Errorf("insert vertex %s: %w", v.ID(), err)
		}
	}

	estmt, err := tx.PrepareContext(ctx, `INSERT INTO edges (snapshot_id, element_id, src_id, dst_id, label, props_json) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer estmt.Close()
	for _, e := range snap.Edges() {
		props, err := encodeProps(e.Properties())
		if err != nil {
			return err
		}
		if _, err := estmt.ExecContext(ctx, snap.ID().String(), e.ID().String(),
			e.Source().String(), e.Destination().String(), e.Label(), props); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID(), err)
		}
	}
	return nil
}

// Load restores a graph at version, or its latest version when version is 0.
func (s *Store) Load(ctx context.Context, name string, version int64) (snap *graph.Snapshot, err error) {
	ctx, done := observe(ctx, "load", attribute.String("graph", name), attribute.Int64("version", version))
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if version == 0 {
		version, err = s.latestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
	}
	if cached, ok := s.cache.Get(cacheKey{name, version}); ok {
		observability.StoreCacheHitsTotal.Inc()
		return cached, nil
	}

	var (
		sum        Summary
		schemaJSON string
	)
	err = s.withRetry(ctx, "load snapshot", func() error {
		row := s.db.QueryRowContext(ctx, `
SELECT id, parent_id, graph_name, version, created_at_utc, digest, vertex_count, edge_count, schema_json
FROM snapshots WHERE graph_name = ? AND version = ?`, name, version)
		var scanErr error
		sum, schemaJSON, scanErr = scanSummary(row, true)
		return scanErr
	})
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.CodeNotFound, "graph %q has no version %d", name, version).
			WithContext(errors.CtxGraph, name)
	}
	if err != nil {
		return nil, err
	}

	schema, err := decodeSchema(schemaJSON)
	if err != nil {
		return nil, err
	}
	vertices, err := s.loadVertices(ctx, sum.ID, schema)
	if err != nil {
		return nil, err
	}
	edges, err := s.loadEdges(ctx, sum.ID, schema)
	if err != nil {
		return nil, err
	}

	snap, err = graph.RestoreSnapshot(graph.SnapshotMeta{
		ID:        sum.ID,
		ParentID:  sum.ParentID,
		Name:      sum.Name,
		Version:   sum.Version,
		CreatedAt: sum.CreatedAt,
	}, schema, vertices, edges)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxGraph, name)
	}
	if sum.Digest != "" && snap.Digest() != sum.Digest {
		return nil, errors.Newf(errors.CodeInternal, "graph %q version %d digest mismatch", name, version).
			WithContext(errors.CtxGraph, name)
	}
	s.cache.Put(cacheKey{name, version}, snap)
	return snap, nil
}

func (s *Store) latestVersion(ctx context.Context, name string) (int64, error) {
	var latest sql.NullInt64
	err := s.withRetry(ctx, "latest version", func() error {
		return s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM snapshots WHERE graph_name = ?`, name).Scan(&latest)
	})
	if err != nil {
		return 0, err
	}
	if !latest.Valid {
		return 0, errors.Newf(errors.CodeNotFound, "graph %q not found", name).
			WithContext(errors.CtxGraph, name)
	}
	return latest.Int64, nil
}

func (s *Store) loadVertices(ctx context.Context, snapID uuid.UUID, schema graph.Schema) ([]graph.VertexRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT element_id, labels_json, props_json FROM vertices WHERE snapshot_id = ?`, snapID.String())
	if err != nil {
		return nil, fmt.Errorf("query vertices: %w", err)
	}
	defer rows.Close()

	out := make([]graph.VertexRecord, 0)
	for rows.Next() {
		var rawID, labelsRaw, propsRaw string
		if err := rows.Scan(&rawID, &labelsRaw, &propsRaw); err != nil {
			return nil, fmt.Errorf("scan vertex row: %w", err)
		}
		id, err := parseElementID(rawID, schema.VertexIDType)
		if err != nil {
			return nil, err
		}
		labels, err := decodeLabels(labelsRaw)
		if err != nil {
			return nil, err
		}
		props, err := decodeProps(propsRaw, schema.VertexProperties)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxElementID, rawID)
		}
		out = append(out, graph.VertexRecord{ID: id, Labels: labels, Properties: props})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vertex rows: %w", err)
	}
	return out, nil
}

func (s *Store) loadEdges(ctx context.Context, snapID uuid.UUID, schema graph.Schema) ([]graph.EdgeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT element_id, src_id, dst_id, label, props_json FROM edges WHERE snapshot_id = ?`, snapID.String())
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	out := make([]graph.EdgeRecord, 0)
	for rows.Next() {
		var rawID, rawSrc, rawDst, label, propsRaw string
		if err := rows.Scan(&rawID, &rawSrc, &rawDst, &label, &propsRaw); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		rec := graph.EdgeRecord{Label: label}
		if rec.ID, err = parseElementID(rawID, schema.EdgeIDType); err != nil {
			return nil, err
		}
		if rec.Source, err = parseElementID(rawSrc, schema.VertexIDType); err != nil {
			return nil, err
		}
		if rec.Dest, err = parseElementID(rawDst, schema.VertexIDType); err != nil {
			return nil, err
		}
		if rec.Properties, err = decodeProps(propsRaw, schema.EdgeProperties); err != nil {
			return nil, errors.AddContext(err, errors.CtxElementID, rawID)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge rows: %w", err)
	}
	return out, nil
}

// List returns the latest snapshot of every graph whose name matches pattern.
// An empty pattern matches everything.
func (s *Store) List(ctx context.Context, pattern string) (out []Summary, err error) {
	ctx, done := observe(ctx, "list", attribute.String("pattern", pattern))
	defer func() { done(err) }()

	var matcher glob.Glob
	if strings.TrimSpace(pattern) != "" {
		matcher, err = glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("invalid graph pattern %q", pattern))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.querySummaries(ctx, `
SELECT s.id, s.parent_id, s.graph_name, s.version, s.created_at_utc, s.digest, s.vertex_count, s.edge_count
FROM snapshots s
JOIN (SELECT graph_name, MAX(version) AS version FROM snapshots GROUP BY graph_name) latest
  ON latest.graph_name = s.graph_name AND latest.version = s.version
ORDER BY s.graph_name ASC`)
	if err != nil {
		return nil, err
	}
	out = make([]Summary, 0, len(all))
	for _, sum := range all {
		if matcher == nil || matcher.Match(sum.Name) {
			out = append(out, sum)
		}
	}
	return out, nil
}

// History returns every stored version of a graph, oldest first.
func (s *Store) History(ctx context.Context, name string) (out []Summary, err error) {
	ctx, done := observe(ctx, "history", attribute.String("graph", name))
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	out, err = s.querySummaries(ctx, `
SELECT id, parent_id, graph_name, version, created_at_utc, digest, vertex_count, edge_count
FROM snapshots WHERE graph_name = ? ORDER BY version ASC`, name)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "graph %q not found", name).
			WithContext(errors.CtxGraph, name)
	}
	return out, nil
}

// Delete removes every version of a graph and reports how many were dropped.
func (s *Store) Delete(ctx context.Context, name string) (n int64, err error) {
	ctx, done := observe(ctx, "delete", attribute.String("graph", name))
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.withRetry(ctx, "delete graph", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE graph_name = ?`, name)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.cache.EvictWhere(func(k cacheKey) bool { return k.name == name })
	return n, nil
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]Summary, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, "query snapshots", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		sum, _, err := scanSummary(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner, withSchema bool) (Summary, string, error) {
	var (
		sum                     Summary
		rawID, rawParent, rawTS string
		schemaJSON              string
	)
	dest := []any{&rawID, &rawParent, &sum.Name, &sum.Version, &rawTS, &sum.Digest, &sum.VertexCount, &sum.EdgeCount}
	if withSchema {
		dest = append(dest, &schemaJSON)
	}
	if err := row.Scan(dest...); err != nil {
		return Summary{}, "", err
	}

	var err error
	if sum.ID, err = uuid.Parse(rawID); err != nil {
		return Summary{}, "", fmt.Errorf("parse snapshot id %q: %w", rawID, err)
	}
	if rawParent != "" {
		if sum.ParentID, err = uuid.Parse(rawParent); err != nil {
			return Summary{}, "", fmt.Errorf("parse parent id %q: %w", rawParent, err)
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return Summary{}, "", fmt.Errorf("parse snapshot timestamp %q: %w", rawTS, err)
	}
	sum.CreatedAt = ts.UTC()
	return sum, schemaJSON, nil
}

func parseElementID(raw string, t graph.IDType) (graph.ElementID, error) {
	if t == graph.IDTypeString {
		return graph.StringID(raw), nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return graph.ElementID{}, errors.Newf(errors.CodeTypeMismatch, "stored id %q is not an integer", raw).
			WithContext(errors.CtxElementID, raw)
	}
	return graph.IntID(n), nil
}

func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}
	var de *errors.DomainError
	if stdErrors.As(lastErr, &de) || stdErrors.Is(lastErr, sql.ErrNoRows) {
		return lastErr
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func openError(op, path string, err error) error {
	if IsCorruptError(err) {
		return fmt.Errorf("snapshot store %q is not a valid sqlite database (move it aside to start fresh): %w", path, err)
	}
	return fmt.Errorf("%s %q: %w", op, path, err)
}

// IsCorruptError reports whether err looks like a damaged database file.
func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || stdErrors.Is(err, os.ErrInvalid)
}

// observe opens a span for op and returns the func that ends it and records
// the operation latency.
func observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "snapshots."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
