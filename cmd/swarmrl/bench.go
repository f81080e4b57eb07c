package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"swarmrl/internal/batch"
	"swarmrl/internal/env"
	"swarmrl/internal/indexdb"
	"swarmrl/internal/logging"
	"swarmrl/internal/prng"
)

func newBenchCmd(rf *rootFlags) *cobra.Command {
	var (
		numEnvs int
		steps   int
		repeats int
		workers int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time the batched random-action driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rf.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("num-envs") {
				cfg.Batch.NumEnvs = numEnvs
			}
			if cmd.Flags().Changed("steps") {
				cfg.Batch.Steps = steps
			}
			if cmd.Flags().Changed("repeats") {
				cfg.Batch.Repeats = repeats
			}
			if cmd.Flags().Changed("workers") {
				cfg.Batch.Workers = workers
			}
			if cfg.Batch.Repeats < 1 {
				cfg.Batch.Repeats = 1
			}

			e, err := cfg.Env.Build()
			if err != nil {
				return err
			}
			runID := uuid.NewString()
			logger = logger.With("run", runID[:8], "task", e.Name())
			logger.Info("bench",
				"envs", cfg.Batch.NumEnvs,
				"steps", cfg.Batch.Steps,
				"repeats", cfg.Batch.Repeats,
				"agents", e.NumAgents(),
			)

			summaries, err := logging.NewLogger(cfg.Logging.CSVPath, cfg.Logging.JSONPath, logger, cfg.Logging.SummaryEvery)
			if err != nil {
				return err
			}
			if err := summaries.Init(); err != nil {
				return err
			}
			defer summaries.Close()

			var traj *logging.TrajectoryWriter
			if cfg.Logging.TrajectoryDir != "" {
				if traj, err = logging.NewTrajectoryWriter(cfg.Logging.TrajectoryDir, runID); err != nil {
					return err
				}
				defer traj.Close()
			}

			ctx := cmd.Context()
			var idx *indexdb.SQLiteIndex
			if cfg.Logging.IndexDB != "" {
				if idx, err = indexdb.OpenSQLite(cfg.Logging.IndexDB); err != nil {
					return err
				}
				defer idx.Close()
				err = idx.RecordRun(ctx, indexdb.Run{
					ID:         runID,
					Task:       e.Name(),
					Seed:       cfg.Seed,
					NumEnvs:    cfg.Batch.NumEnvs,
					Steps:      cfg.Batch.Steps,
					Workers:    cfg.Batch.Workers,
					ConfigJSON: string(cfg.Env.JSON()),
					StartedAt:  time.Now(),
				})
				if err != nil {
					return err
				}
			}

			var total time.Duration
			for rep := 0; rep < cfg.Batch.Repeats; rep++ {
				d, err := batch.New(e, cfg.Batch.DriverConfig())
				if err != nil {
					return err
				}
				tracker := batch.NewTracker(cfg.Batch.NumEnvs)
				var hookErr error
				hook := func(iter int, stepped []env.State) {
					if hookErr != nil {
						return
					}
					if err := summaries.LogIteration(runID, rep, batch.Summarize(iter, stepped)); err != nil {
						hookErr = err
						return
					}
					for _, ep := range tracker.Observe(iter, stepped) {
						idx.RecordEpisode(runID, rep, ep)
					}
					if traj != nil {
						hookErr = traj.Write(logging.Frame{Run: runID, Repeat: rep, Iteration: iter, State: stepped[0].Snapshot()})
					}
				}

				start := time.Now()
				d.Init(prng.New(cfg.Seed))
				if err := d.Run(hook); err != nil {
					return err
				}
				elapsed := time.Since(start)
				total += elapsed
				if hookErr != nil {
					return hookErr
				}
				logger.Info("repeat done",
					"repeat", rep,
					"elapsed", elapsed.Round(time.Millisecond),
					"steps_per_sec", int(stepsPerSec(cfg.Batch.NumEnvs, cfg.Batch.Steps, elapsed)),
				)
			}

			mean := total / time.Duration(cfg.Batch.Repeats)
			sps := stepsPerSec(cfg.Batch.NumEnvs, cfg.Batch.Steps, mean)
			logger.Info("bench done", "mean", mean.Round(time.Millisecond), "steps_per_sec", int(sps))
			if idx != nil {
				if err := idx.FinishRun(context.WithoutCancel(ctx), runID, mean, sps); err != nil {
					return err
				}
				if n := idx.Dropped(); n > 0 {
					logger.Warn("index dropped episodes", "count", n)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&numEnvs, "num-envs", 0, "override batch.num_envs")
	cmd.Flags().IntVar(&steps, "steps", 0, "override batch.steps")
	cmd.Flags().IntVar(&repeats, "repeats", 0, "override batch.repeats")
	cmd.Flags().IntVar(&workers, "workers", 0, "override batch.workers")
	return cmd
}

func stepsPerSec(numEnvs, steps int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(numEnvs) * float64(steps) / d.Seconds()
}
