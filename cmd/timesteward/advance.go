package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/timesteward/extendedtime"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions
	To int64
}

// NewAdvanceCommand runs the two-wall-corner scenario (spec §8
// scenario 1) forward to --to and prints the ball's final state.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "advance",
		Short:         "Run the two-wall-corner demo forward to a base time",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.To, "to", 20, "base time to advance to")

	return cmd
}

func runAdvance(cmd *cobra.Command, opts *AdvanceOptions) error {
	e, err := wallCorner(opts.log)
	if err != nil {
		return err
	}

	outcome, err := e.AdvanceTo(context.Background(), extendedtime.Time(opts.To), nil)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}

	h := e.Snapshot(extendedtime.Time(opts.To))
	defer e.ReleaseSnapshot(h)

	value, ok := h.Query(columnBall, ballID)
	if !ok {
		return fmt.Errorf("advance: ball state missing from snapshot at %s", outcome.Present)
	}
	ball, ok := value.(ballState)
	if !ok {
		return fmt.Errorf("advance: unexpected snapshot value type %T", value)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "present: %s\n", outcome.Present)
	fmt.Fprintf(cmd.OutOrStdout(), "ball: pos=(%d,%d) vel=(%d,%d) as-of=%d\n",
		ball.PosX, ball.PosY, ball.VelX, ball.VelY, ball.AsOf)
	return nil
}
