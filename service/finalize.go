package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"questmaster/reasoning"
	"questmaster/shared"
)

const (
	minSubtasks = 4
	maxSubtasks = 8
)

// Finalization is the staged output of a successful pipeline run.
type Finalization struct {
	Instruction string
	Subtasks    []shared.Subtask
}

// Pipeline turns a finished conversation into a final instruction, then
// splits that instruction into subtasks. The stages always run in this order.
type Pipeline struct {
	adapter *reasoning.Adapter
	prompts *Prompts
}

func NewPipeline(adapter *reasoning.Adapter, prompts *Prompts) *Pipeline {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Pipeline{adapter: adapter, prompts: prompts}
}

// Run executes both stages. A failure of the first stage skips the second.
// The result is only returned when both stages succeed.
func (p *Pipeline) Run(ctx context.Context, conversation []shared.Turn) (*Finalization, error) {
	start := time.Now()
	instruction, err := p.Synthesize(ctx, conversation)
	if err != nil {
		return nil, &FinalizationError{Stage: StageInstruction, Err: err}
	}
	subtasks, err := p.Decompose(ctx, instruction)
	if err != nil {
		return nil, &FinalizationError{Stage: StageSubtasks, Err: err}
	}
	log.Debug().
		Int("subtasks", len(subtasks)).
		Dur("took", time.Since(start)).
		Msg("finalization done")
	return &Finalization{Instruction: instruction, Subtasks: subtasks}, nil
}

// Synthesize produces the final instruction from the whole conversation.
func (p *Pipeline) Synthesize(ctx context.Context, conversation []shared.Turn) (string, error) {
	out, err := reasoning.InvokeTemplate[finalInstructionOutput](ctx, p.adapter, p.prompts.FinalInstruction, FinalInstructionSchema,
		map[string]any{"Turns": conversation})
	if err != nil {
		return "", err
	}
	instruction := strings.TrimSpace(out.FinalInstruction)
	if instruction == "" {
		return "", fmt.Errorf("%w: final instruction", ErrEmptyOutput)
	}
	return instruction, nil
}

// Decompose splits instruction into subtasks. The 4 to 8 range is asked for
// in the prompt and only logged when the backend ignores it.
func (p *Pipeline) Decompose(ctx context.Context, instruction string) ([]shared.Subtask, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: cannot decompose an empty instruction", ErrInput)
	}
	out, err := reasoning.InvokeTemplate[subtaskOutput](ctx, p.adapter, p.prompts.Subtasks, SubtaskSchema,
		map[string]any{"Instruction": instruction})
	if err != nil {
		return nil, err
	}
	if len(out.Subtasks) == 0 {
		return nil, fmt.Errorf("%w: no subtasks", ErrEmptyOutput)
	}

	subtasks := make([]shared.Subtask, 0, len(out.Subtasks))
	for i, item := range out.Subtasks {
		item.Title = strings.TrimSpace(item.Title)
		item.Description = strings.TrimSpace(item.Description)
		if item.Title == "" || item.Description == "" {
			return nil, fmt.Errorf("%w: subtask %d has no title or description", ErrEmptyOutput, i+1)
		}
		subtasks = append(subtasks, item)
	}
	if len(subtasks) < minSubtasks || len(subtasks) > maxSubtasks {
		log.Warn().Int("subtasks", len(subtasks)).Msg("subtask count outside the requested range")
	}
	return subtasks, nil
}
