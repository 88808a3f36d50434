package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"questmaster/service"
	"questmaster/session"
	"questmaster/shared"
)

type QuizArgs struct {
	Org     string   `json:"org"`
	Details []string `json:"details"`
}

// PresentedSubtask is a subtask as task boards show it.
type PresentedSubtask struct {
	Title           string `json:"title"`
	TaskDescription string `json:"taskDescription"`
	Value           int    `json:"value"`
}

type LatestTask struct {
	SessionID         string             `json:"session_identifier"`
	Conversation      []shared.Turn      `json:"conversation"`
	Location          string             `json:"location"`
	ExtraInstructions string             `json:"extra_instructions"`
	FinalInstruction  string             `json:"final_instruction,omitempty"`
	Subtasks          []PresentedSubtask `json:"subtasks"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func failure(tool string, err error) *mcp.CallToolResult {
	log.Error().Err(err).Str("tool", tool).Msg("tool call failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", errorKind(err), err))
}

func (s *Server) clarifyTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "clarify_task",
		Description: "Runs one turn of the task clarification dialogue. Returns a clarifying question with optional choices, or once the task is clear, the final instruction and its subtasks. Pass the returned session_identifier on every following turn.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"task_description": {
					Type:        jsonschema.String,
					Description: "The client's description of the task, or the answer to the previous question.",
				},
				"session_identifier": {
					Type:        jsonschema.String,
					Description: "The session returned by the previous turn. Leave empty to start a new dialogue.",
				},
				"location": {
					Type:        jsonschema.String,
					Description: "Where the task takes place. Only the first value given in a session is kept.",
				},
				"extra_instructions": {
					Type:        jsonschema.String,
					Description: "Additional instructions from the client. Only the first value given in a session is kept.",
				},
			},
			Required: []string{"task_description"},
		},
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args service.Request
		if err := request.BindArguments(&args); err != nil {
			return failure(def.Name, fmt.Errorf("%w: %v", service.ErrInput, err)), nil
		}
		resp, err := s.engine.Turn(ctx, args)
		if err != nil {
			return failure(def.Name, err), nil
		}
		return shared.NewToolResultJSON(resp)
	}
	return def, handler
}

func (s *Server) latestTaskTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "latest_task",
		Description: "Returns the most recently started task with its conversation and, once finalized, its subtasks.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{},
		},
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		latest, err := s.engine.Latest(ctx)
		if errors.Is(err, session.ErrNotFound) {
			return mcp.NewToolResultError("input: no task has been started yet"), nil
		}
		if err != nil {
			return failure(def.Name, err), nil
		}
		return shared.NewToolResultJSON(s.present(latest))
	}
	return def, handler
}

func (s *Server) present(sess *session.Session) LatestTask {
	task := LatestTask{
		SessionID:         sess.ID,
		Conversation:      sess.Conversation,
		Location:          sess.Location,
		ExtraInstructions: sess.ExtraInstructions,
		FinalInstruction:  sess.FinalInstruction,
		Subtasks:          make([]PresentedSubtask, 0, len(sess.Subtasks)),
		CreatedAt:         sess.CreatedAt,
		UpdatedAt:         sess.UpdatedAt,
	}
	for _, sub := range sess.Subtasks {
		task.Subtasks = append(task.Subtasks, PresentedSubtask{
			Title:           sub.Title,
			TaskDescription: sub.Description,
			Value:           s.value(),
		})
	}
	return task
}

func (s *Server) quizTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "generate_quiz",
		Description: "Generates a multiple choice quiz about the employee benefits of an organisation, one question per benefit topic.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"org": {
					Type:        jsonschema.String,
					Description: "The organisation the quiz is about.",
				},
				"details": {
					Type:        jsonschema.Array,
					Description: "Optional excerpts from the organisation's benefit documents to base the questions on.",
					Items:       &jsonschema.Definition{Type: jsonschema.String},
				},
			},
			Required: []string{"org"},
		},
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args QuizArgs
		if err := request.BindArguments(&args); err != nil {
			return failure(def.Name, fmt.Errorf("%w: %v", service.ErrInput, err)), nil
		}
		if strings.TrimSpace(args.Org) == "" {
			return failure(def.Name, fmt.Errorf("%w: org is required", service.ErrInput)), nil
		}
		result, err := s.generator.Generate(ctx, args.Org, args.Details)
		if err != nil {
			return failure(def.Name, err), nil
		}
		return shared.NewToolResultJSON(result)
	}
	return def, handler
}
