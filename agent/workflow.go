// Package agent wires the process: one backend, one adapter, one store, built
// at startup and closed at shutdown, plus the interactive chat loop.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"questmaster/config"
	mcpclient "questmaster/mcp-client"
	mcpserver "questmaster/mcp-server"
	"questmaster/quiz"
	"questmaster/reasoning"
	"questmaster/service"
	"questmaster/session"
)

type Workflow struct {
	cfg     *config.Config
	store   session.Store
	adapter *reasoning.Adapter
	engine  *service.Engine
	quiz    *quiz.Generator
	remote  *mcpclient.Client
}

func (w *Workflow) Close() error {
	var errList []error
	if w.remote != nil {
		errList = append(errList, w.remote.Close())
	}
	if w.store != nil {
		errList = append(errList, w.store.Close())
	}
	return errors.Join(errList...)
}

// Init builds the configured backend and everything that depends on it.
func (w *Workflow) Init(cfg *config.Config) error {
	backend, err := cfg.NewBackend()
	if err != nil {
		return err
	}
	return w.setup(cfg, backend)
}

func (w *Workflow) setup(cfg *config.Config, backend reasoning.Backend) error {
	w.cfg = cfg
	w.adapter = reasoning.NewAdapter(backend, cfg.ReasoningOptions())
	log.Info().Str("backend", w.adapter.Backend()).Msg("create reasoning adapter success")

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	w.store = store
	log.Info().Str("driver", cfg.Store.Driver).Msg("open session store success")

	w.engine = service.NewEngine(store, w.adapter, service.WithStrictSessions(cfg.Session.Strict))
	w.quiz, err = quiz.NewGenerator(w.adapter)
	if err != nil {
		return err
	}
	return nil
}

// Connect sends chat turns to a questmaster MCP server started with command
// instead of the local engine.
func (w *Workflow) Connect(ctx context.Context, command string, args ...string) error {
	remote, err := mcpclient.NewStdioClient(ctx, command, nil, args...)
	if err != nil {
		return err
	}
	w.remote = remote
	log.Info().Str("server", remote.Server()).Msg("create mcp client success")
	return nil
}

func (w *Workflow) Engine() *service.Engine {
	return w.engine
}

func (w *Workflow) Quiz() *quiz.Generator {
	return w.quiz
}

func (w *Workflow) Server() (*mcpserver.Server, error) {
	return mcpserver.NewServer(w.engine, w.quiz)
}

func (w *Workflow) clarify(ctx context.Context, req service.Request) (*service.Response, error) {
	if w.remote != nil {
		return w.remote.Clarify(ctx, req)
	}
	return w.engine.Turn(ctx, req)
}

// ChatOptions seed the context of a new dialogue.
type ChatOptions struct {
	SessionID         string
	Location          string
	ExtraInstructions string
}

// Chat reads client messages from in, one per line, until the task is
// finalized or in is exhausted. A number picks one of the offered choices.
func (w *Workflow) Chat(ctx context.Context, in io.Reader, out io.Writer, opts ChatOptions) error {
	scanner := bufio.NewScanner(in)
	sessionID := opts.SessionID
	var choices []string

	fmt.Fprintln(out, "Describe the task you need done.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(choices) {
			input = choices[n-1]
		}

		resp, err := w.clarify(ctx, service.Request{
			TaskDescription:   input,
			SessionID:         sessionID,
			Location:          opts.Location,
			ExtraInstructions: opts.ExtraInstructions,
		})
		if err != nil {
			if errors.Is(err, service.ErrFinalized) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Msg("clarification turn failed")
			fmt.Fprintf(out, "Something went wrong (%v), please try again.\n", err)
			continue
		}
		sessionID = resp.SessionID
		choices = resp.Choices

		fmt.Fprintln(out, resp.Reply)
		for i, choice := range resp.Choices {
			fmt.Fprintf(out, "  %d. %s\n", i+1, choice)
		}
		if resp.FinalInstruction != "" {
			printFinal(out, resp)
			return nil
		}
	}
}

func printFinal(out io.Writer, resp *service.Response) {
	fmt.Fprintf(out, "\nFinal instruction:\n%s\n\nSubtasks:\n", resp.FinalInstruction)
	for i, sub := range resp.Subtasks {
		fmt.Fprintf(out, "  %d. %s: %s\n", i+1, sub.Title, sub.Description)
	}
	fmt.Fprintf(out, "\nSession: %s\n", resp.SessionID)
}
