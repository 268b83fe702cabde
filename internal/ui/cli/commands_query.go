package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"snapgraph/internal/data/query"
	"snapgraph/internal/shared/util"
	"snapgraph/internal/ui/report/formats"
)

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var (
		version int64
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "query <graph> <query>",
		Short: "Select vertices or edges of a snapshot",
		Long: `Run a filter query against a stored snapshot:

  SELECT vertices|edges [WHERE <cond> [AND <cond>...]] [LIMIT n]

Conditions compare id, label, src, dst or a property (optionally written
props.<name>) using =, !=, <, <=, >, >= or CONTAINS.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.requireStore(); err != nil {
					return err
				}
				snap, err := rt.store.Load(ctx, args[0], version)
				if err != nil {
					return err
				}
				res, err := query.Execute(ctx, snap, args[1], limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), elementsView(res.Vertices, res.Edges))
				}
				printElements(cmd.OutOrStdout(), res.Vertices, res.Edges)
				fmt.Fprintf(cmd.ErrOrStderr(), "%d %s matched in %s v%d\n", res.Len(), res.Target, snap.Name(), snap.Version())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "Snapshot version (0 = latest)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of elements (0 = no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		version int64
		format  string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "export <graph>",
		Short: "Render a snapshot as " + strings.Join(formats.Names(), ", "),
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
				text, err := formats.Render(snap, format)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = fmt.Fprint(cmd.OutOrStdout(), text)
					return err
				}
				if err := util.WriteFileWithDirs(output, []byte(text), 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				rt.logger.Info("snapshot exported", "graph", snap.Name(), "version", snap.Version(), "format", format, "path", output)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "Snapshot version (0 = latest)")
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "Export format ("+strings.Join(formats.Names(), "|")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
