package service

import (
	"questmaster/reasoning"
	"questmaster/shared"
)

// Verdict is the per-turn completeness judgment. It is never stored.
type Verdict struct {
	IsComplete    bool     `json:"is_complete"`
	QuestionOrAck string   `json:"question_or_ack"`
	Choices       []string `json:"choices"`
}

var VerdictSchema = reasoning.Schema{
	Name:        "completeness_verdict",
	Description: "Whether the task description is detailed enough for a freelancer to carry it out, and what to tell the client next.",
	Fields: []reasoning.Field{
		{
			Name:        "is_complete",
			Type:        reasoning.Bool,
			Description: "True when a freelancer could carry out the task from the conversation alone, without contacting the client.",
		},
		{
			Name:        "question_or_ack",
			Type:        reasoning.String,
			Description: "When incomplete, one short clarifying question about the most important missing detail. When complete, a short acknowledgment that the task is clear.",
		},
		{
			Name:        "choices",
			Type:        reasoning.StringList,
			Description: "Up to five likely answers to the question for the client to pick from. Empty when the question is open ended or the task is complete.",
		},
	},
}

type finalInstructionOutput struct {
	FinalInstruction string `json:"final_instruction"`
}

var FinalInstructionSchema = reasoning.Schema{
	Name:        "final_instruction",
	Description: "The complete instruction a freelancer follows to carry out the task.",
	Fields: []reasoning.Field{
		{
			Name:        "final_instruction",
			Type:        reasoning.String,
			Description: "A self-contained description of the task with every detail gathered in the conversation: what to do, where, with which materials and to which standard.",
		},
	},
}

type subtaskOutput struct {
	Subtasks []shared.Subtask `json:"subtasks"`
}

var SubtaskSchema = reasoning.Schema{
	Name:        "subtask_list",
	Description: "The task split into ordered, independently verifiable subtasks.",
	Fields: []reasoning.Field{
		{
			Name:        "subtasks",
			Type:        reasoning.RecordList,
			Description: "Between four and eight subtasks in execution order.",
			Fields: []reasoning.Field{
				{
					Name:        "title",
					Type:        reasoning.String,
					Description: "A short name of the end state, a few words.",
				},
				{
					Name:        "description",
					Type:        reasoning.String,
					Description: "The concrete end state that shows the subtask is done, observable by looking at the result.",
				},
			},
		},
	},
}
