package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/example/timesteward/internal/tslog"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	log     *tslog.Logger
}

// NewRootCommand creates the root "timesteward" command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "timesteward",
		Short: "Demo CLI for the retroactive deterministic simulation engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := tslog.LevelInfo
			if opts.Verbose {
				level = tslog.LevelDebug
			}
			opts.log = tslog.New(level, "[timesteward] ", os.Stdout)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewXCheckCommand(opts))

	return cmd
}
