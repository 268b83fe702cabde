package config

import "time"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	DB            Database      `toml:"db"`
	Builder       Builder       `toml:"builder"`
	Session       Session       `toml:"session"`
	Watch         Watch         `toml:"watch"`
	Exclude       Exclude       `toml:"exclude"`
	Caches        Caches        `toml:"caches"`
	Observability Observability `toml:"observability"`
	Logging       Logging       `toml:"logging"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	DatabaseDir string `toml:"database_dir"`
	ScriptsDir  string `toml:"scripts_dir"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Driver      string        `toml:"driver"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

// Builder holds the defaults every new change set starts with.
type Builder struct {
	AddExistingVertex  string `toml:"add_existing_vertex"`
	AddExistingEdge    string `toml:"add_existing_edge"`
	InvalidChange      string `toml:"invalid_change"`
	RequiredConversion string `toml:"required_conversion"`
	RetainVertexIDs    *bool  `toml:"retain_vertex_ids"`
	RetainEdgeIDs      *bool  `toml:"retain_edge_ids"`
}

// Session controls build admission. BuildRate is builds per second per graph;
// zero disables limiting.
type Session struct {
	BuildRate  float64       `toml:"build_rate"`
	BuildBurst int           `toml:"build_burst"`
	LimiterTTL time.Duration `toml:"limiter_ttl"`
}

// Watch configures watch mode. Changed scripts are queued and applied in
// batches of up to BatchSize by a single worker.
type Watch struct {
	Paths         []string      `toml:"paths"`
	Debounce      time.Duration `toml:"debounce"`
	QueueCapacity int           `toml:"queue_capacity"`
	BatchSize     int           `toml:"batch_size"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Caches struct {
	Snapshots int `toml:"snapshots"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func (b Builder) RetainVertexIDsOrDefault() bool {
	if b.RetainVertexIDs == nil {
		return true
	}
	return *b.RetainVertexIDs
}

func (b Builder) RetainEdgeIDsOrDefault() bool {
	if b.RetainEdgeIDs == nil {
		return true
	}
	return *b.RetainEdgeIDs
}
