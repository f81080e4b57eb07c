package main

import (
	"github.com/spf13/cobra"

	"swarmrl/internal/eval"
	"swarmrl/internal/logging"
)

func newEvalCmd(rf *rootFlags) *cobra.Command {
	var (
		episodes int
		compare  bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a policy over consecutive seeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rf.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("episodes") {
				cfg.Eval.Episodes = episodes
			}
			e, err := cfg.Env.Build()
			if err != nil {
				return err
			}

			pols := []string{cfg.Eval.Policy}
			if compare {
				pols = []string{"hold", "random", "greedy"}
				if cfg.Eval.Policy == "mlp" {
					pols = append(pols, "mlp")
				}
			}
			for _, name := range pols {
				c := *cfg
				c.Eval.Policy = name
				pol, err := buildPolicy(&c, e)
				if err != nil {
					return err
				}
				agg, _, err := eval.NewEvaluator(e, pol, cfg.Env.JSON(), cfg.Eval.Workers).
					MultiSeed(cmd.Context(), cfg.Eval.BaseSeed, cfg.Eval.Episodes)
				if err != nil {
					return err
				}
				logging.LogEvaluation(logger.With("policy", pol.Name()), e.Name(), agg, agg.RobustnessScore(cfg.Eval.Lambda))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes", 0, "override eval.episodes")
	cmd.Flags().BoolVar(&compare, "compare", false, "evaluate every built-in policy on the same seeds")
	return cmd
}

