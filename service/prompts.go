package service

import (
	_ "embed"
	"fmt"
	"sync"

	"questmaster/reasoning"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts are the templates of one clarification profile.
//   - System takes the session context (Location, ExtraInstructions).
//   - FinalInstruction takes the conversation (Turns).
//   - Subtasks takes the final instruction (Instruction).
type Prompts struct {
	System           *reasoning.Template
	FinalInstruction *reasoning.Template
	Subtasks         *reasoning.Template
}

type systemBindings struct {
	Location          string
	ExtraInstructions string
}

// LoadPrompts parses a YAML prompt profile with the keys system,
// final_instruction and subtasks.
func LoadPrompts(data []byte) (*Prompts, error) {
	templates, err := reasoning.LoadTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	required, err := templates.Require("system", "final_instruction", "subtasks")
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &Prompts{
		System:           required[0],
		FinalInstruction: required[1],
		Subtasks:         required[2],
	}, nil
}

var defaultPrompts = sync.OnceValue(func() *Prompts {
	p, err := LoadPrompts(promptsYAML)
	if err != nil {
		panic(err)
	}
	return p
})

// DefaultPrompts returns the built-in prompt profile.
func DefaultPrompts() *Prompts {
	return defaultPrompts()
}
