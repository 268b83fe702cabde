package cli

import (
	"github.com/spf13/cobra"
)

const versionString = "1.0.0"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
	noStore    bool
}

// NewRootCommand assembles the snapgraph command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "snapgraph",
		Short:         "Build immutable graph snapshots from staged change sets",
		Long:          `snapgraph applies declarative change scripts to versioned graph snapshots, persists every version and serves metrics for long-running watch mode.`,
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: discover snapgraph.toml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&opts.noStore, "no-store", false, "Keep snapshots in memory only")

	root.AddCommand(
		newApplyCommand(opts),
		newShowCommand(opts),
		newListCommand(opts),
		newHistoryCommand(opts),
		newDropCommand(opts),
		newQueryCommand(opts),
		newExportCommand(opts),
		newWatchCommand(opts),
		newServeCommand(opts),
	)
	return root
}
