package main

import (
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"questmaster/agent"
)

var (
	chatServer   string
	chatSession  string
	chatLocation string
	chatExtra    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Clarify a task interactively",
	Long: `Start a clarification dialogue on the terminal. Answer the questions
until the task is clear; the final instruction and its subtasks are printed at
the end.

With --server the turns go to a questmaster MCP server started from the given
command line instead of the local engine.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "", "command line of an MCP server to talk to, e.g. \"questmaster serve\"")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "continue an existing session")
	chatCmd.Flags().StringVar(&chatLocation, "location", "", "where the task takes place")
	chatCmd.Flags().StringVar(&chatExtra, "extra", "", "additional instructions for the freelancer")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var w *agent.Workflow
	if fields := strings.Fields(chatServer); len(fields) > 0 {
		// every turn goes to the server, so no local backend or store
		w = &agent.Workflow{}
		if err := w.Connect(ctx, fields[0], fields[1:]...); err != nil {
			return err
		}
	} else {
		var err error
		if w, err = newWorkflow(); err != nil {
			return err
		}
	}
	defer closeWorkflow(w)

	return w.Chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), agent.ChatOptions{
		SessionID:         chatSession,
		Location:          chatLocation,
		ExtraInstructions: chatExtra,
	})
}
