package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"swarmrl/internal/config"
	"swarmrl/internal/logging"
)

const defaultConfig = "configs/hover.yaml"

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	root := &cobra.Command{
		Use:           "swarmrl",
		Short:         "Batched multi-drone reinforcement learning environments",
		SilenceUsage: true,
	}

	def := os.Getenv("SWARMRL_CONFIG")
	if def == "" {
		def = defaultConfig
	}
	root.PersistentFlags().StringVar(&rf.configPath, "config", def, "path to config file (env SWARMRL_CONFIG)")
	root.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newBenchCmd(rf),
		newPlayCmd(rf),
		newEvalCmd(rf),
		newServeCmd(rf),
		newReplayCmd(rf),
	)
	return root
}

// load reads the config and builds the console logger from it.
func (rf *rootFlags) load() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(rf.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if rf.logLevel != "" {
		cfg.Logging.Level = rf.logLevel
	}
	return cfg, logging.New(cfg.Logging.Level, os.Stderr), nil
}
