package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/snapshot"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	At int64
}

// NewSnapshotCommand advances the two-wall-corner demo to --at and
// prints its canonical CBOR snapshot (spec §6 snapshot/serialize_snapshot).
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "snapshot",
		Short:         "Advance the demo and print a canonical snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.At, "at", 20, "base time to snapshot at")

	return cmd
}

func runSnapshot(cmd *cobra.Command, opts *SnapshotOptions) error {
	e, err := wallCorner(opts.log)
	if err != nil {
		return err
	}
	if _, err := e.AdvanceTo(context.Background(), extendedtime.Time(opts.At), nil); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	h := e.Snapshot(extendedtime.Time(opts.At))
	defer e.ReleaseSnapshot(h)

	data, err := snapshot.Serialize(h)
	if err != nil {
		return fmt.Errorf("snapshot: serialize: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "snapshot at %s (%d bytes):\n%s\n", h.Time(), len(data), hex.EncodeToString(data))
	return nil
}
