package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	quizOrg     string
	quizDetails []string
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Generate an employee benefits quiz",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorkflow()
		if err != nil {
			return err
		}
		defer closeWorkflow(w)

		result, err := w.Quiz().Generate(cmd.Context(), quizOrg, quizDetails)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	quizCmd.Flags().StringVar(&quizOrg, "org", "", "organisation the quiz is about")
	quizCmd.Flags().StringArrayVar(&quizDetails, "detail", nil, "excerpt of a benefit document, repeatable")
	quizCmd.MarkFlagRequired("org")
}
