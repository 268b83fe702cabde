// # internal/ui/cli/commands.go
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"snapgraph/internal/core/app"
	"snapgraph/internal/core/config"
	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
	"snapgraph/internal/engine/script"
	"snapgraph/internal/shared/util"
)

// withRuntime opens the runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newApplyCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply <script|dir>...",
		Short: "Apply change scripts and publish the resulting snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				paths, err := expandScriptArgs(args)
				if err != nil {
					return err
				}
				if dryRun {
					return dryRunScripts(ctx, cmd, rt, paths)
				}

				failed := 0
				for _, res := range rt.session.ApplyFiles(ctx, paths) {
					if res.Err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", res.Path, res.Err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s: %s\n", res.Path, describe(res.Snapshot))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d scripts failed", failed, len(paths))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build snapshots without publishing them")
	return cmd
}

// dryRunScripts builds each script against the current latest version
// without registering or persisting the result.
func dryRunScripts(ctx context.Context, cmd *cobra.Command, rt *runtime, paths []string) error {
	for _, path := range paths {
		sc, err := script.Load(path)
		if err != nil {
			return err
		}
		base, err := rt.session.Graph(ctx, sc.Graph)
		if errors.IsCode(err, errors.CodeNotFound) {
			schema, serr := sc.GraphSchema()
			if serr != nil {
				return serr
			}
			base, err = graph.NewEmptySnapshot(sc.Graph, schema), nil
		}
		if err != nil {
			return err
		}
		cs := rt.session.CreateChangeSet(base)
		if err := sc.Apply(cs); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		snap, err := cs.BuildNewSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dry-run %s: %s [%s]\n", path, describe(snap), cs)
	}
	return nil
}

// expandScriptArgs turns directories into their change scripts, sorted by
// name. Explicit file arguments must exist.
func expandScriptArgs(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		found := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && util.ScriptExtension(e.Name()) != "" {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	var (
		version  int64
		elements bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "show <graph>",
		Short: "Show a graph snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.requireStore(); err != nil {
					return err
				}
				snap, err := rt.store.Load(ctx, args[0], version)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), snapshotView(snap, elements))
				}
				printSnapshot(cmd.OutOrStdout(), snap, elements)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "Snapshot version (0 = latest)")
	cmd.Flags().BoolVar(&elements, "elements", false, "Print vertices and edges")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [pattern]",
		Short: "List graphs whose name matches a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.requireStore(); err != nil {
					return err
				}
				pattern := ""
				if len(args) == 1 {
					pattern = args[0]
				}
				sums, err := rt.store.List(ctx, pattern)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), summaryViews(sums))
				}
				printSummaries(cmd.OutOrStdout(), sums)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <graph>",
		Short: "List every stored version of a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.requireStore(); err != nil {
					return err
				}
				sums, err := rt.store.History(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), summaryViews(sums))
				}
				printSummaries(cmd.OutOrStdout(), sums)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newDropCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <graph>",
		Short: "Delete every stored version of a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.requireStore(); err != nil {
					return err
				}
				n, err := rt.session.DropGraph(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s (%d versions)\n", args[0], n)
				return nil
			})
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var initial bool
	cmd := &cobra.Command{
		Use:   "watch [dir]...",
		Short: "Apply change scripts whenever they are created or edited",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				paths, err := rt.watchPaths(args)
				if err != nil {
					return err
				}
				if initial {
					existing, err := expandScriptArgs(paths)
					if err != nil {
						return err
					}
					rt.session.ApplyFiles(ctx, existing)
				}

				w, err := rt.session.StartWatcher(ctx, paths)
				if err != nil {
					return err
				}
				defer w.Close()

				cw, err := rt.startConfigWatcher(ctx, opts.verbose, w)
				if err != nil {
					return err
				}
				if cw != nil {
					defer cw.Stop()
				}

				<-ctx.Done()
				rt.logger.Info("watch stopped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "Apply scripts already present before watching")
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health endpoints, optionally watching change scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if addr == "" {
					addr = net.JoinHostPort("", strconv.Itoa(rt.cfg.Observability.Port))
				}
				server := NewObservabilityServer(addr, app.NewHealthService(rt.session), rt.cfg.Observability.EnableMetrics)
				if err := server.Start(ctx); err != nil {
					return err
				}
				defer func() {
					if err := server.Stop(context.Background()); err != nil {
						rt.logger.Warn("observability server shutdown failed", "error", err)
					}
				}()

				var sw *app.ScriptWatcher
				if watch {
					paths, err := rt.watchPaths(nil)
					if err != nil {
						return err
					}
					sw, err = rt.session.StartWatcher(ctx, paths)
					if err != nil {
						return err
					}
					defer sw.Close()
				}

				cw, err := rt.startConfigWatcher(ctx, opts.verbose, sw)
				if err != nil {
					return err
				}
				if cw != nil {
					defer cw.Stop()
				}

				<-ctx.Done()
				rt.logger.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: :<observability.port>)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Also watch the configured script directories")
	return cmd
}

// watchPaths resolves explicit directories or falls back to the configured
// watch paths, creating the scripts directory when it is missing.
func (r *runtime) watchPaths(args []string) ([]string, error) {
	paths := args
	if len(paths) == 0 {
		paths = r.paths.WatchPaths
		if err := os.MkdirAll(r.paths.ScriptsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scripts directory: %w", err)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, errors.Newf(errors.CodeValidationError, "watch path %s is not a directory", p)
		}
	}
	return paths, nil
}

// startConfigWatcher hot-reloads builder defaults, the log level and the
// debounce of sw when set. It is a no-op when no config file was loaded.
func (r *runtime) startConfigWatcher(ctx context.Context, verbose bool, sw *app.ScriptWatcher) (*config.Watcher, error) {
	if r.cfgPath == "" {
		return nil, nil
	}
	w := config.NewWatcher(r.cfgPath, func(cfg *config.Config) {
		if err := r.session.UpdateDefaults(cfg.Builder); err != nil {
			r.logger.Error("failed to apply reloaded builder defaults", "error", err)
		}
		if sw != nil {
			sw.SetDebounce(cfg.Watch.Debounce)
		}
		if !verbose {
			r.logLevel.Set(parseLevel(cfg.Logging.Level))
		}
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
