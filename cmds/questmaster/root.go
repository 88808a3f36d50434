package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"questmaster/agent"
	"questmaster/config"
	"questmaster/shared"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "questmaster",
	Short: "Task clarification assistant",
	Long: `questmaster turns a short description of a physical task into a final
instruction a freelancer can follow, asking clarifying questions until the
description is complete, then splits it into verifiable subtasks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		shared.SetupLogger(loaded.Log.Level, loaded.Log.Console)
		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./questmaster.yaml or $XDG_CONFIG_HOME/questmaster/questmaster.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(quizCmd)
}

func newWorkflow() (*agent.Workflow, error) {
	w := &agent.Workflow{}
	if err := w.Init(cfg); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func closeWorkflow(w *agent.Workflow) {
	if err := w.Close(); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
