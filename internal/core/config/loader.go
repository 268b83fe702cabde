package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"snapgraph/internal/engine/graph"
)

// Load reads a TOML config file, applies defaults and validates it. Env
// overrides are applied separately by ApplyEnvOverrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, err
	}
	if !md.IsDefined("db", "enabled") {
		cfg.DB.Enabled = true
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := Config{DB: Database{Enabled: true}}
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}
	if strings.TrimSpace(cfg.Paths.DatabaseDir) == "" {
		cfg.Paths.DatabaseDir = "data/database"
	}
	if strings.TrimSpace(cfg.Paths.ScriptsDir) == "" {
		cfg.Paths.ScriptsDir = "changes"
	}

	if strings.TrimSpace(cfg.DB.Driver) == "" {
		cfg.DB.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "snapshots.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	policies := graph.DefaultPolicies()
	setDefault(&cfg.Builder.AddExistingVertex, string(policies.Get(graph.PolicyAddExistingVertex)))
	setDefault(&cfg.Builder.AddExistingEdge, string(policies.Get(graph.PolicyAddExistingEdge)))
	setDefault(&cfg.Builder.InvalidChange, string(policies.Get(graph.PolicyInvalidChange)))
	setDefault(&cfg.Builder.RequiredConversion, string(policies.Get(graph.PolicyRequiredConversion)))

	if cfg.Session.BuildBurst <= 0 {
		cfg.Session.BuildBurst = 1
	}
	if cfg.Session.LimiterTTL <= 0 {
		cfg.Session.LimiterTTL = 10 * time.Minute
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.QueueCapacity <= 0 {
		cfg.Watch.QueueCapacity = 256
	}
	if cfg.Watch.BatchSize <= 0 {
		cfg.Watch.BatchSize = 16
	}
	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{cfg.Paths.ScriptsDir}
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git"}
	}

	if cfg.Caches.Snapshots <= 0 {
		cfg.Caches.Snapshots = 64
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Logging.Format) == "" {
		cfg.Logging.Format = "text"
	}
}

func setDefault(target *string, value string) {
	if strings.TrimSpace(*target) == "" {
		*target = value
	}
}

func normalize(cfg *Config) {
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.DB.Path = strings.TrimSpace(cfg.DB.Path)
	cfg.Builder.AddExistingVertex = strings.ToLower(strings.TrimSpace(cfg.Builder.AddExistingVertex))
	cfg.Builder.AddExistingEdge = strings.ToLower(strings.TrimSpace(cfg.Builder.AddExistingEdge))
	cfg.Builder.InvalidChange = strings.ToLower(strings.TrimSpace(cfg.Builder.InvalidChange))
	cfg.Builder.RequiredConversion = strings.ToLower(strings.TrimSpace(cfg.Builder.RequiredConversion))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
}

// Policies turns the builder section into a policy registry.
func (b Builder) Policies() (graph.PolicyRegistry, error) {
	r := graph.DefaultPolicies()
	for kind, name := range map[graph.PolicyKind]string{
		graph.PolicyAddExistingVertex:  b.AddExistingVertex,
		graph.PolicyAddExistingEdge:    b.AddExistingEdge,
		graph.PolicyInvalidChange:      b.InvalidChange,
		graph.PolicyRequiredConversion: b.RequiredConversion,
	} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if err := r.Set(kind, name); err != nil {
			return graph.PolicyRegistry{}, err
		}
	}
	return r, nil
}
