// Package session holds clarification dialogue state and its storage.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"questmaster/shared"
)

var ErrAlreadyFinalized = errors.New("session already finalized")

// Session is one clarification dialogue, keyed by ID. Location and
// ExtraInstructions are filled once, from the first call that supplies them.
type Session struct {
	ID                string           `json:"id"`
	Conversation      []shared.Turn    `json:"conversation"`
	Location          string           `json:"location,omitempty"`
	ExtraInstructions string           `json:"extra_instructions,omitempty"`
	FinalInstruction  string           `json:"final_instruction,omitempty"`
	Subtasks          []shared.Subtask `json:"subtasks"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func New(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Conversation: []shared.Turn{},
		Subtasks:     []shared.Subtask{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Session) Finalized() bool {
	return s.FinalInstruction != ""
}

// FillContext sets location and extra instructions if they are still blank.
func (s *Session) FillContext(location, extraInstructions string) {
	if strings.TrimSpace(s.Location) == "" {
		s.Location = strings.TrimSpace(location)
	}
	if strings.TrimSpace(s.ExtraInstructions) == "" {
		s.ExtraInstructions = strings.TrimSpace(extraInstructions)
	}
}

func (s *Session) Append(turns ...shared.Turn) {
	s.Conversation = append(s.Conversation, turns...)
}

func (s *Session) LastTurn() (shared.Turn, bool) {
	if len(s.Conversation) == 0 {
		return shared.Turn{}, false
	}
	return s.Conversation[len(s.Conversation)-1], true
}

// Finalize records the final instruction and its subtasks together. Either both
// are set or the session is left untouched.
func (s *Session) Finalize(instruction string, subtasks []shared.Subtask) error {
	if s.Finalized() {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, s.ID)
	}
	if strings.TrimSpace(instruction) == "" {
		return fmt.Errorf("finalize %s: empty final instruction", s.ID)
	}
	if len(subtasks) == 0 {
		return fmt.Errorf("finalize %s: no subtasks", s.ID)
	}
	copied := make([]shared.Subtask, len(subtasks))
	copy(copied, subtasks)
	s.FinalInstruction = instruction
	s.Subtasks = copied
	return nil
}

func (s *Session) Clone() *Session {
	c := *s
	c.Conversation = make([]shared.Turn, len(s.Conversation))
	copy(c.Conversation, s.Conversation)
	c.Subtasks = make([]shared.Subtask, len(s.Subtasks))
	copy(c.Subtasks, s.Subtasks)
	return &c
}
