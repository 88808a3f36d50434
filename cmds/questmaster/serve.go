package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	serveTransport string
	serveAddr      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clarification tools over MCP",
	Long: `Serve clarify_task, latest_task and generate_quiz as MCP tools, over
stdio (the default) or SSE.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "stdio or sse (overrides server.transport)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address for sse (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	w, err := newWorkflow()
	if err != nil {
		return err
	}
	defer closeWorkflow(w)

	s, err := w.Server()
	if err != nil {
		return err
	}

	switch cfg.Server.Transport {
	case "stdio":
		return s.ServeStdio()
	case "sse":
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return s.ServeSSE(ctx, cfg.Server.Addr)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
}
