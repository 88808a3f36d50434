// Package mcpserver exposes the clarification dialogue, the latest task and
// quiz generation as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"questmaster/quiz"
	"questmaster/reasoning"
	"questmaster/service"
	"questmaster/shared"
)

const (
	Name    = "questmaster"
	Version = "1.0.0"
)

type Server struct {
	engine    *service.Engine
	generator *quiz.Generator
	mcp       *server.MCPServer
	// value draws the presentation value of a subtask
	value func() int
}

type toolFunc func() (openai.FunctionDefinition, server.ToolHandlerFunc)

// NewServer registers the tools. generator may be nil, generate_quiz is then
// left out.
func NewServer(engine *service.Engine, generator *quiz.Generator) (*Server, error) {
	s := &Server{
		engine:    engine,
		generator: generator,
		mcp:       server.NewMCPServer(Name, Version, server.WithToolCapabilities(true), server.WithRecovery()),
		value:     func() int { return rand.IntN(100) + 1 },
	}
	tools := []toolFunc{s.clarifyTool, s.latestTaskTool}
	if generator != nil {
		tools = append(tools, s.quizTool)
	}
	var errList []error
	for _, fn := range tools {
		def, handler := fn()
		tool, err := shared.ConvertToMcpTool(def)
		if err != nil {
			errList = append(errList, fmt.Errorf("convert tool %s: %w", def.Name, err))
			continue
		}
		s.mcp.AddTool(tool, handler)
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ServeStdio() error {
	log.Info().Msg("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

// ServeSSE serves until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sse := server.NewSSEServer(s.mcp)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()
	log.Info().Str("addr", addr).Msg("serving MCP over SSE")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return sse.Shutdown(context.Background())
	}
}

// errorKind names the failure class of err for tool error results.
func errorKind(err error) string {
	var finalErr *service.FinalizationError
	switch {
	case errors.Is(err, service.ErrInput):
		return "input"
	case errors.Is(err, service.ErrFinalized):
		return "finalized"
	case errors.As(err, &finalErr) && finalErr.Partial():
		return "finalization_partial"
	case errors.Is(err, service.ErrEmptyOutput), errors.Is(err, reasoning.ErrSchemaInvalid):
		return reasoning.KindSchemaInvalid.String()
	default:
		return reasoning.KindOf(err).String()
	}
}
