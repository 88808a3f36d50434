package shared

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a clarification dialogue.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Text: text}
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// Subtask is one verifiable end state of a finalized task.
type Subtask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
