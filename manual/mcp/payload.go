package mcp

import (
	"encoding/json"
	"strings"

	"github.com/petal-labs/toolbridge/tool"
)

// ToolCallError is a failure the server reported with isError.
type ToolCallError struct {
	Message string
}

func (e *ToolCallError) Error() string {
	if e == nil || e.Message == "" {
		return "mcp: tool reported an error"
	}
	return "mcp: " + e.Message
}

// Payload unwraps the result: structured content when present, otherwise the
// content blocks. A single text block holding JSON is decoded.
func (r ToolsCallResult) Payload() (any, error) {
	if r.IsError {
		return nil, &ToolCallError{Message: r.text()}
	}
	if r.StructuredContent != nil {
		return r.StructuredContent, nil
	}

	switch len(r.Content) {
	case 0:
		return nil, nil
	case 1:
		return blockValue(r.Content[0]), nil
	}
	out := make([]any, 0, len(r.Content))
	for _, block := range r.Content {
		out = append(out, blockValue(block))
	}
	return out, nil
}

func (r ToolsCallResult) text() string {
	parts := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	return strings.Join(parts, "\n")
}

func blockValue(block ContentBlock) any {
	switch block.Type {
	case "text":
		trimmed := strings.TrimSpace(block.Text)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded
			}
		}
		return block.Text
	case "resource":
		return map[string]any{"type": block.Type, "resource": block.Resource}
	default:
		out := map[string]any{"type": block.Type}
		if block.MimeType != "" {
			out["mimeType"] = block.MimeType
		}
		if block.Data != "" {
			out["data"] = block.Data
		}
		return out
	}
}

var _ tool.Envelope = ToolsCallResult{}
