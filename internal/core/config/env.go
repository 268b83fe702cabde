package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: SNAPGRAPH_[SECTION]_[KEY] (e.g., SNAPGRAPH_OBSERVABILITY_PORT).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "SNAPGRAPH_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "SNAPGRAPH_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.DatabaseDir, "SNAPGRAPH_PATHS_DATABASE_DIR")
	setEnvString(&cfg.Paths.ScriptsDir, "SNAPGRAPH_PATHS_SCRIPTS_DIR")

	// Database
	setEnvBool(&cfg.DB.Enabled, "SNAPGRAPH_DB_ENABLED")
	setEnvString(&cfg.DB.Driver, "SNAPGRAPH_DB_DRIVER")
	setEnvString(&cfg.DB.Path, "SNAPGRAPH_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "SNAPGRAPH_DB_BUSY_TIMEOUT")

	// Builder
	setEnvString(&cfg.Builder.AddExistingVertex, "SNAPGRAPH_BUILDER_ADD_EXISTING_VERTEX")
	setEnvString(&cfg.Builder.AddExistingEdge, "SNAPGRAPH_BUILDER_ADD_EXISTING_EDGE")
	setEnvString(&cfg.Builder.InvalidChange, "SNAPGRAPH_BUILDER_INVALID_CHANGE")
	setEnvString(&cfg.Builder.RequiredConversion, "SNAPGRAPH_BUILDER_REQUIRED_CONVERSION")
	setEnvBoolPtr(&cfg.Builder.RetainVertexIDs, "SNAPGRAPH_BUILDER_RETAIN_VERTEX_IDS")
	setEnvBoolPtr(&cfg.Builder.RetainEdgeIDs, "SNAPGRAPH_BUILDER_RETAIN_EDGE_IDS")

	// Session
	setEnvFloat64(&cfg.Session.BuildRate, "SNAPGRAPH_SESSION_BUILD_RATE")
	setEnvInt(&cfg.Session.BuildBurst, "SNAPGRAPH_SESSION_BUILD_BURST")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "SNAPGRAPH_WATCH_DEBOUNCE")
	setEnvInt(&cfg.Watch.QueueCapacity, "SNAPGRAPH_WATCH_QUEUE_CAPACITY")
	setEnvInt(&cfg.Watch.BatchSize, "SNAPGRAPH_WATCH_BATCH_SIZE")

	// Caches
	setEnvInt(&cfg.Caches.Snapshots, "SNAPGRAPH_CACHES_SNAPSHOTS")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "SNAPGRAPH_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "SNAPGRAPH_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "SNAPGRAPH_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "SNAPGRAPH_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "SNAPGRAPH_OBSERVABILITY_ENABLE_METRICS")

	// Logging
	setEnvString(&cfg.Logging.Level, "SNAPGRAPH_LOGGING_LEVEL")
	setEnvString(&cfg.Logging.Format, "SNAPGRAPH_LOGGING_FORMAT")

	normalize(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
