package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recently started session as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cfg.OpenStore()
		if err != nil {
			return err
		}
		defer store.Close()

		latest, err := store.Latest(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(latest)
	},
}
