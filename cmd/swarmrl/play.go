package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmrl/internal/config"
	"swarmrl/internal/env"
	"swarmrl/internal/eval"
	"swarmrl/internal/policy"
	"swarmrl/internal/prng"
)

func newPlayCmd(rf *rootFlags) *cobra.Command {
	var (
		seed       uint64
		policyName string
		record     string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run one episode with a policy through the keyed API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rf.load()
			if err != nil {
				return err
			}
			if policyName != "" {
				cfg.Eval.Policy = policyName
			}
			e, err := cfg.Env.Build()
			if err != nil {
				return err
			}
			pol, err := buildPolicy(cfg, e)
			if err != nil {
				return err
			}
			logger = logger.With("task", e.Name(), "policy", pol.Name(), "seed", seed)

			if verbose {
				if err := playVerbose(e, pol, seed, func(step int, res env.StepResult) {
					logger.Info("step", "t", step, "rewards", res.Rewards)
				}); err != nil {
					return err
				}
			}

			rep, st, err := eval.NewEvaluator(e, pol, cfg.Env.JSON(), 1).EpisodeWithReplay(seed)
			if err != nil {
				return err
			}
			logger.Info("episode",
				"steps", st.Steps,
				"return", fmt.Sprintf("%.4f", st.Return),
				"distance", fmt.Sprintf("%.3f", st.FinalDistance),
				"end", st.End,
			)
			if record != "" {
				if err := rep.Save(record); err != nil {
					return err
				}
				logger.Info("replay saved", "path", record)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 12345, "episode seed")
	cmd.Flags().StringVar(&policyName, "policy", "", "override eval.policy")
	cmd.Flags().StringVar(&record, "record", "", "save a replay (.json or .json.zst)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log every step")
	return cmd
}

// playVerbose steps an episode through the keyed API and reports each step.
func playVerbose(e env.Env, pol policy.Policy, seed uint64, report func(int, env.StepResult)) error {
	p := env.NewParallel(e)
	key := prng.New(seed)
	obs := p.Reset(key)
	actKey, _ := key.Split(0)
	for step := 1; len(p.Agents()) > 0; step++ {
		var sub prng.Key
		actKey, sub = actKey.Pair()
		acts, err := policy.ActMap(pol, e.AgentNames(), obs, sub)
		if err != nil {
			return err
		}
		res, err := p.Step(acts)
		if err != nil {
			return err
		}
		report(step, res)
		obs = res.Observations
	}
	return nil
}

func buildPolicy(cfg *config.Config, e env.Env) (policy.Policy, error) {
	return policy.FromOptions(policy.Options{
		Name:        cfg.Eval.Policy,
		Standoff:    cfg.Eval.Standoff,
		WeightsPath: cfg.Eval.WeightsPath,
		InputSize:   e.ObservationSpace().Dim(),
		Hidden1:     cfg.Eval.Hidden1,
		Hidden2:     cfg.Eval.Hidden2,
		Seed:        cfg.Seed,
	})
}
