package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signals/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "signals",
	Short: "Email decisioning and execution pipeline",
	Long:  "Turns synced emails into interview-pipeline mutations: extracts structured facts via Claude, plans deterministic actions, validates the plan against schema and evidence, and executes idempotent handlers with a full audit trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
