package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmrl/internal/config"
	"swarmrl/internal/env"
	"swarmrl/internal/logging"
)

func newReplayCmd(rf *rootFlags) *cobra.Command {
	var frames bool
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Verify a recorded episode, or summarise a trajectory log with --frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(rf.logLevel, nil)
			path := args[0]

			if frames {
				var n, done int
				err := logging.ReadTrajectory(path, func(fr logging.Frame) error {
					n++
					if anyNonZero(fr.State.Terminations) || anyNonZero(fr.State.Truncations) {
						done++
					}
					return nil
				})
				if err != nil {
					return err
				}
				logger.Info("trajectory", "path", path, "frames", n, "episode_ends", done)
				return nil
			}

			rep, err := env.LoadReplay(path)
			if err != nil {
				return err
			}
			ec, err := config.ParseEnvJSON(rep.Config)
			if err != nil {
				return err
			}
			e, err := ec.Build()
			if err != nil {
				return err
			}
			final, err := rep.Playback(e)
			if err != nil {
				return err
			}
			if final.Timestep() != rep.FinalStats.Steps || env.EndOf(final) != rep.FinalStats.End {
				return fmt.Errorf("%w: ended at t=%d (%s), recorded t=%d (%s)", env.ErrReplayMismatch,
					final.Timestep(), env.EndOf(final), rep.FinalStats.Steps, rep.FinalStats.End)
			}
			logger.Info("replay verified", "task", rep.Task, "seed", rep.Seed, "steps", len(rep.Actions), "end", rep.FinalStats.End)
			return nil
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "treat the file as a bench trajectory log")
	return cmd
}

func anyNonZero(xs []float64) bool {
	for _, x := range xs {
		if x != 0 {
			return true
		}
	}
	return false
}
