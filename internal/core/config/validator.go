package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Validate checks a config that already has defaults applied.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validateDatabase,
		validateBuilder,
		validateSession,
		validateWatch,
		validateObservability,
		validateLogging,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if driver != "sqlite" {
		return fmt.Errorf("db.driver must be sqlite, got %q", cfg.DB.Driver)
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateBuilder(cfg *Config) error {
	if _, err := cfg.Builder.Policies(); err != nil {
		return fmt.Errorf("builder: %w", err)
	}
	return nil
}

func validateSession(cfg *Config) error {
	if cfg.Session.BuildRate < 0 {
		return fmt.Errorf("session.build_rate must be >= 0, got %v", cfg.Session.BuildRate)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.QueueCapacity < 1 {
		return fmt.Errorf("watch.queue_capacity must be >= 1, got %d", cfg.Watch.QueueCapacity)
	}
	if cfg.Watch.BatchSize < 1 {
		return fmt.Errorf("watch.batch_size must be >= 1, got %d", cfg.Watch.BatchSize)
	}
	for i, p := range cfg.Watch.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("watch.paths[%d] must not be empty", i)
		}
	}
	for _, pattern := range append(append([]string(nil), cfg.Exclude.Dirs...), cfg.Exclude.Files...) {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("exclude pattern %q is invalid: %w", pattern, err)
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	obs := cfg.Observability
	if obs.Port < 0 || obs.Port > 65535 {
		return fmt.Errorf("observability.port must be between 0 and 65535, got %d", obs.Port)
	}
	if obs.EnableTracing && obs.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint must be set when enable_tracing=true")
	}
	return nil
}

func validateLogging(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	return nil
}
