package reasoning

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"questmaster/shared"
)

type OpenAIConfig struct {
	APIKey string
	// BaseURL points the client at any OpenAI compatible endpoint.
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIBackend asks for structured output through a strict json_schema
// response format.
type OpenAIBackend struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
	}, nil
}

func (b *OpenAIBackend) Name() string {
	return "openai/" + b.cfg.Model
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) ([]byte, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Turns))
	for _, turn := range req.Turns {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openAIRole(turn.Role),
			Content: turn.Text,
		})
	}

	def := req.Schema.Definition()
	chatReq := openai.ChatCompletionRequest{
		Model:       b.cfg.Model,
		Messages:    msgs,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      &def,
				Strict:      true,
			},
		},
	}
	response, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrSchemaInvalid)
	}
	choice := response.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return nil, fmt.Errorf("%w: output truncated at %d tokens", ErrSchemaInvalid, b.cfg.MaxTokens)
	}
	return []byte(choice.Message.Content), nil
}

func openAIRole(role shared.Role) string {
	switch role {
	case shared.RoleSystem:
		return openai.ChatMessageRoleSystem
	case shared.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
