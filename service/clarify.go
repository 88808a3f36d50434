// Package service runs the clarification dialogue: one Turn per client message,
// and the finalization pipeline once the task is fully described.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"questmaster/reasoning"
	"questmaster/session"
	"questmaster/shared"
)

// Request is the caller-facing input of one turn.
type Request struct {
	TaskDescription   string `json:"task_description"`
	SessionID         string `json:"session_identifier,omitempty"`
	Location          string `json:"location,omitempty"`
	ExtraInstructions string `json:"extra_instructions,omitempty"`
}

// Response is the caller-facing output of one turn. FinalInstruction is only
// set on the turn that finalizes the session.
type Response struct {
	SessionID        string           `json:"session_identifier"`
	Reply            string           `json:"reply"`
	Choices          []string         `json:"choices"`
	FinalInstruction string           `json:"final_instruction,omitempty"`
	Subtasks         []shared.Subtask `json:"subtasks"`
}

type Engine struct {
	store    session.Store
	adapter  *reasoning.Adapter
	prompts  *Prompts
	pipeline *Pipeline
	strict   bool
}

type Option func(*Engine)

// WithStrictSessions makes an unknown session identifier an input error
// instead of starting a new session.
func WithStrictSessions(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

func WithPrompts(prompts *Prompts) Option {
	return func(e *Engine) {
		if prompts != nil {
			e.prompts = prompts
		}
	}
}

func NewEngine(store session.Store, adapter *reasoning.Adapter, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		adapter: adapter,
		prompts: DefaultPrompts(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pipeline = NewPipeline(adapter, e.prompts)
	return e
}

// Turn runs one clarification step for req. The session is saved once, after
// every reasoning call succeeded, so a failed turn leaves the stored session
// as it was.
func (e *Engine) Turn(ctx context.Context, req Request) (*Response, error) {
	description := strings.TrimSpace(req.TaskDescription)
	if description == "" {
		return nil, fmt.Errorf("%w: task description is required", ErrInput)
	}

	s, err := e.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if s.Finalized() {
		return nil, fmt.Errorf("%w: %s", ErrFinalized, s.ID)
	}

	s.FillContext(req.Location, req.ExtraInstructions)
	if len(s.Conversation) == 0 {
		system, err := e.prompts.System.Render(systemBindings{
			Location:          s.Location,
			ExtraInstructions: s.ExtraInstructions,
		})
		if err != nil {
			return nil, err
		}
		s.Append(shared.SystemTurn(system))
	}
	s.Append(shared.UserTurn(req.TaskDescription))

	verdict, err := reasoning.Invoke[Verdict](ctx, e.adapter, reasoning.Conversation(VerdictSchema, s.Conversation))
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("completeness check failed")
		return nil, fmt.Errorf("clarify session %s: %w", s.ID, err)
	}
	reply := strings.TrimSpace(verdict.QuestionOrAck)
	if reply == "" {
		return nil, fmt.Errorf("clarify session %s: %w: question or acknowledgment", s.ID, ErrEmptyOutput)
	}
	s.Append(shared.AssistantTurn(reply))

	resp := &Response{
		SessionID: s.ID,
		Reply:     reply,
		Choices:   cleanChoices(verdict.Choices),
		Subtasks:  []shared.Subtask{},
	}

	if verdict.IsComplete {
		final, err := e.pipeline.Run(ctx, s.Conversation)
		if err != nil {
			log.Error().Err(err).Str("session", s.ID).Msg("finalization failed")
			return nil, fmt.Errorf("finalize session %s: %w", s.ID, err)
		}
		if err := s.Finalize(final.Instruction, final.Subtasks); err != nil {
			return nil, err
		}
		resp.FinalInstruction = s.FinalInstruction
		resp.Subtasks = s.Subtasks
	}

	if err := e.store.Save(ctx, s); err != nil {
		return nil, err
	}
	log.Info().
		Str("session", s.ID).
		Int("turns", len(s.Conversation)).
		Bool("complete", verdict.IsComplete).
		Msg("clarification turn done")
	return resp, nil
}

func (e *Engine) load(ctx context.Context, id string) (*session.Session, error) {
	id = strings.TrimSpace(id)
	if !e.strict || id == "" {
		s, created, err := e.store.FindOrCreate(ctx, id)
		if err != nil {
			return nil, err
		}
		if created && id != "" {
			log.Warn().Str("requested", id).Str("session", s.ID).Msg("unknown session, started a new one")
		}
		return s, nil
	}
	s, err := e.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown session %s", ErrInput, id)
	}
	return s, err
}

// Latest returns the most recently started session.
func (e *Engine) Latest(ctx context.Context) (*session.Session, error) {
	return e.store.Latest(ctx)
}

func cleanChoices(items []string) []string {
	if items == nil {
		return []string{}
	}
	res := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
