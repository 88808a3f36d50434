package shared

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"
)

// ConvertToMcpTool turns a function definition into an MCP tool with the same
// JSON schema.
func ConvertToMcpTool(def openai.FunctionDefinition) (mcp.Tool, error) {
	if def.Name == "" {
		return mcp.Tool{}, fmt.Errorf("function definition without name")
	}
	data, err := json.Marshal(def.Parameters)
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(def.Name, def.Description, data), nil
}

// NewToolResultJSON renders v as the text content of a tool result.
func NewToolResultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ToolResultText joins the text contents of a tool result.
func ToolResultText(res *mcp.CallToolResult) string {
	var builder strings.Builder
	for _, content := range res.Content {
		text, ok := content.(mcp.TextContent)
		if ok {
			builder.WriteString(text.Text)
		}
	}
	return builder.String()
}
