// Package mcpclient talks to a questmaster MCP server.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mcpserver "questmaster/mcp-server"
	"questmaster/quiz"
	"questmaster/service"
	"questmaster/shared"
)

// ToolError is a failed tool call. Kind is the failure class reported by the
// server, such as input or timeout.
type ToolError struct {
	Tool    string
	Kind    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed (%s): %s", e.Tool, e.Kind, e.Message)
}

// Is lets remote failures match the local sentinels, so callers handle
// errors.Is(err, service.ErrFinalized) the same with or without a server.
func (e *ToolError) Is(target error) bool {
	switch e.Kind {
	case "input":
		return target == service.ErrInput
	case "finalized":
		return target == service.ErrFinalized
	}
	return false
}

type Client struct {
	c      *client.Client
	server string
}

// NewStdioClient starts command as a stdio MCP server and connects to it.
func NewStdioClient(ctx context.Context, command string, env []string, args ...string) (*Client, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, err
	}
	return initialize(ctx, c)
}

// NewInProcessClient connects to a server running in the same process.
func NewInProcessClient(ctx context.Context, srv *server.MCPServer) (*Client, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return initialize(ctx, c)
}

func initialize(ctx context.Context, c *client.Client) (*Client, error) {
	res, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "questmaster-client",
				Version: mcpserver.Version,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize mcp client: %w", err)
	}
	return &Client{c: c, server: res.ServerInfo.Name}, nil
}

// Server returns the name the server announced.
func (cl *Client) Server() string {
	return cl.server
}

func (cl *Client) Close() error {
	return cl.c.Close()
}

func (cl *Client) Tools(ctx context.Context) ([]string, error) {
	res, err := cl.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return names, nil
}

func (cl *Client) call(ctx context.Context, name string, args any, out any) error {
	res, err := cl.c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return fmt.Errorf("call tool %s: %w", name, err)
	}
	text := shared.ToolResultText(res)
	if res.IsError {
		kind, message, found := strings.Cut(text, ": ")
		if !found {
			kind, message = "unknown", text
		}
		return &ToolError{Tool: name, Kind: kind, Message: message}
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode %s result: %w", name, err)
	}
	return nil
}

func (cl *Client) Clarify(ctx context.Context, req service.Request) (*service.Response, error) {
	var resp service.Response
	if err := cl.call(ctx, "clarify_task", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (cl *Client) LatestTask(ctx context.Context) (*mcpserver.LatestTask, error) {
	var task mcpserver.LatestTask
	if err := cl.call(ctx, "latest_task", map[string]any{}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (cl *Client) GenerateQuiz(ctx context.Context, org string, details []string) (*quiz.Quiz, error) {
	var result quiz.Quiz
	if err := cl.call(ctx, "generate_quiz", mcpserver.QuizArgs{Org: org, Details: details}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
