// Package manual is a UTCP-style protocol client: it holds manuals of tool
// definitions, exposes them as tool descriptors, and dispatches calls to the
// transport named by each tool's call template.
package manual

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolbridge/tool"
)

// Manual is a named collection of tool definitions.
type Manual struct {
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	Version      string         `json:"manual_version,omitempty" yaml:"manual_version,omitempty"`
	UTCPVersion  string         `json:"utcp_version,omitempty" yaml:"utcp_version,omitempty"`
	CallTemplate map[string]any `json:"call_template,omitempty" yaml:"call_template,omitempty"`
	Tools        []ToolSpec     `json:"tools" yaml:"tools"`
}

// ToolSpec is one tool definition inside a manual.
type ToolSpec struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Tags         []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	CallTemplate map[string]any `json:"tool_call_template,omitempty" yaml:"tool_call_template,omitempty"`
}

// Parse decodes a JSON or YAML manual.
func Parse(data []byte) (Manual, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Manual{}, errors.New("manual: document is empty")
	}

	var m Manual
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return Manual{}, fmt.Errorf("manual: decode json: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &m); err != nil {
		return Manual{}, fmt.Errorf("manual: decode yaml: %w", err)
	}
	return m, nil
}

// LoadFile reads and parses a manual file. The manual name defaults to name.
func LoadFile(path, name string) (Manual, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manual{}, fmt.Errorf("manual: read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return Manual{}, fmt.Errorf("%w (%s)", err, path)
	}
	if strings.TrimSpace(name) != "" {
		m.Name = name
	}
	return m, nil
}

// QualifiedName namespaces a tool name under a manual name.
func QualifiedName(manual, name string) string {
	if manual == "" || strings.HasPrefix(name, manual+".") {
		return name
	}
	return manual + "." + name
}

// LocalName strips the manual namespace from a qualified tool name.
func LocalName(manual, name string) string {
	return strings.TrimPrefix(name, manual+".")
}

func (m Manual) descriptor(spec ToolSpec) tool.Descriptor {
	return tool.Descriptor{
		Name:         QualifiedName(m.Name, spec.Name),
		Description:  spec.Description,
		Tags:         append([]string(nil), spec.Tags...),
		InputSchema:  cloneMap(spec.Inputs),
		OutputSchema: cloneMap(spec.Outputs),
		CallTemplate: m.callTemplate(spec),
	}
}

func (m Manual) callTemplate(spec ToolSpec) *tool.CallTemplate {
	raw := spec.CallTemplate
	if len(raw) == 0 {
		raw = m.CallTemplate
	}
	if len(raw) == 0 {
		return nil
	}
	tmpl := &tool.CallTemplate{Fields: make(map[string]any, len(raw))}
	for key, value := range raw {
		switch key {
		case "name":
			tmpl.Name, _ = value.(string)
		case "call_template_type", "type":
			tmpl.Type, _ = value.(string)
		default:
			tmpl.Fields[key] = cloneValue(value)
		}
	}
	if tmpl.Name == "" {
		tmpl.Name = m.Name
	}
	return tmpl
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
