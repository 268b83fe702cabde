package cli

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"snapgraph/internal/core/app"
	"snapgraph/internal/core/config"
	"snapgraph/internal/core/errors"
	"snapgraph/internal/data/snapshots"
	"snapgraph/internal/shared/observability"
)

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.IsCode(err, errors.CodeValidationError) || errors.IsCode(err, errors.CodeInvalidOption) {
			return 2
		}
		return 1
	}
	return 0
}

// runtime is everything a command needs once config is resolved.
type runtime struct {
	cfg      *config.Config
	cfgPath  string
	paths    config.ResolvedPaths
	store    *snapshots.Store
	session  *app.Session
	logger   *slog.Logger
	logLevel *slog.LevelVar

	shutdownTracing func(context.Context) error
}

func openRuntime(ctx context.Context, opts *rootOptions, logOut io.Writer) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid configuration")
	}
	if opts.noStore {
		cfg.DB.Enabled = false
	}

	rt := &runtime{cfg: cfg, cfgPath: cfgPath, logLevel: new(slog.LevelVar)}
	rt.logger = configureLogging(logOut, cfg.Logging, opts.verbose, rt.logLevel)

	base := cwd
	if cfgPath != "" {
		base = filepath.Dir(cfgPath)
	}
	rt.paths, err = config.ResolvePaths(cfg, base)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime paths: %w", err)
	}

	rt.shutdownTracing, err = observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:  cfg.Observability.EnableTracing,
		Endpoint: cfg.Observability.OTLPEndpoint,
		Insecure: cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		return nil, err
	}

	if cfg.DB.Enabled {
		rt.store, err = snapshots.Open(rt.paths.DBPath,
			snapshots.WithCacheSize(cfg.Caches.Snapshots),
			snapshots.WithBusyTimeout(cfg.DB.BusyTimeout))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		rt.logger.Debug("snapshot store opened", "path", rt.store.Path())
	}

	if rt.store != nil {
		rt.session, err = app.NewSession(cfg, rt.store, rt.logger)
	} else {
		rt.session, err = app.NewSession(cfg, nil, rt.logger)
	}
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *runtime) Close() {
	if r.session != nil {
		r.session.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("failed to close snapshot store", "error", err)
		}
	}
	if r.shutdownTracing != nil {
		if err := r.shutdownTracing(context.Background()); err != nil {
			r.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

func (r *runtime) requireStore() error {
	if r.store == nil {
		return errors.New(errors.CodeNotSupported, "this command needs the snapshot store (db.enabled = true)")
	}
	return nil
}

// loadConfig reads an explicit config path or discovers one from cwd. When
// nothing is found the defaults are used and the returned path is empty.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if strings.TrimSpace(path) != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", configError(path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		return cfg, abs, nil
	}

	for _, candidate := range discoverDefaultConfig(cwd) {
		cfg, err := config.Load(candidate)
		if err == nil {
			return cfg, candidate, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return nil, "", configError(candidate, err)
	}
	return config.Default(), "", nil
}

// configError marks decode and validation failures so they exit with the
// usage status; unreadable files stay plain I/O errors.
func configError(path string, err error) error {
	var pathErr *fs.PathError
	if stdErrors.As(err, &pathErr) {
		return err
	}
	return errors.Wrap(err, errors.CodeValidationError, "invalid configuration "+path)
}

func discoverDefaultConfig(cwd string) []string {
	return []string{
		filepath.Clean(filepath.Join(cwd, "snapgraph.toml")),
		filepath.Clean(filepath.Join(cwd, "data/config/snapgraph.toml")),
	}
}

func configureLogging(out io.Writer, cfg config.Logging, verbose bool, level *slog.LevelVar) *slog.Logger {
	level.Set(parseLevel(cfg.Level))
	if verbose {
		level.Set(slog.LevelDebug)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
