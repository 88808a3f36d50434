package reasoning

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"questmaster/shared"
)

type AnthropicConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY when empty.
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// AnthropicBackend gets structured output by forcing a call to a single tool
// whose input schema is the requested schema.
type AnthropicBackend struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_7Sonnet20250219)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicBackend{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (b *AnthropicBackend) Name() string {
	return "anthropic/" + b.cfg.Model
}

func (b *AnthropicBackend) Complete(ctx context.Context, req Request) ([]byte, error) {
	var system []anthropic.TextBlockParam
	var msgs []anthropic.MessageParam
	for _, turn := range req.Turns {
		switch turn.Role {
		case shared.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: turn.Text})
		case shared.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		}
	}

	def := req.Schema.Definition()
	tool := anthropic.ToolParam{
		Name:        req.Schema.Name,
		Description: anthropic.String(req.Schema.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: def.Properties,
			Required:   def.Required,
		},
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.cfg.Model),
		MaxTokens: b.cfg.MaxTokens,
		System:    system,
		Messages:  msgs,
		Tools:     []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		},
	}
	if b.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(b.cfg.Temperature)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.ToolUseBlock); ok && variant.Name == req.Schema.Name {
			return variant.Input, nil
		}
	}
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return nil, fmt.Errorf("%w: output truncated at %d tokens", ErrSchemaInvalid, b.cfg.MaxTokens)
	}
	return nil, fmt.Errorf("%w: no %s tool call in response", ErrSchemaInvalid, req.Schema.Name)
}
