package tool

import (
	"context"
	"strings"
)

// Call template kinds understood by the bundled clients.
const (
	CallTemplateHTTP           = "http"
	CallTemplateSSE            = "sse"
	CallTemplateStreamableHTTP = "streamable_http"
	CallTemplateText           = "text"
	CallTemplateMCP            = "mcp"
	CallTemplateCLI            = "cli"
)

const unknownName = "unknown"

// CallTemplate describes how a client reaches a tool. It is opaque to the
// translator beyond its name and kind.
type CallTemplate struct {
	Name   string         `json:"name,omitempty"`
	Type   string         `json:"call_template_type,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// String returns a field value as a trimmed string, or "" when absent.
func (c CallTemplate) String(key string) string {
	if c.Fields == nil {
		return ""
	}
	value, ok := c.Fields[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// Descriptor is a client-provided record describing one callable tool.
type Descriptor struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	InputSchema  map[string]any `json:"inputs,omitempty"`
	OutputSchema map[string]any `json:"outputs,omitempty"`
	CallTemplate *CallTemplate  `json:"tool_call_template,omitempty"`
}

// ManualName reports the manual a descriptor belongs to: the call template
// name when set, else the prefix before the first dot, else "unknown".
func (d Descriptor) ManualName() string {
	if d.CallTemplate != nil {
		if name := strings.TrimSpace(d.CallTemplate.Name); name != "" {
			return name
		}
	}
	if prefix, _, ok := strings.Cut(d.Name, "."); ok && prefix != "" {
		return prefix
	}
	return unknownName
}

// Client is the protocol client a translated tool delegates to.
//
// ListTools must return descriptors in a stable order for a given registry
// state. CallTool is the single invocation entry point; it receives the tool
// name and argument mapping verbatim.
type Client interface {
	ListTools(ctx context.Context) ([]Descriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}
