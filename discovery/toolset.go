package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	iriscore "github.com/petal-labs/iris/core"
	iristools "github.com/petal-labs/iris/tools"

	"github.com/petal-labs/toolbridge/tool"
)

// Toolset is an ordered set of translated tools.
type Toolset []*tool.Tool

// Names returns tool names in set order.
func (s Toolset) Names() []string {
	names := make([]string, 0, len(s))
	for _, t := range s {
		names = append(names, t.Name())
	}
	return names
}

// Lookup returns the tool with the given name.
func (s Toolset) Lookup(name string) (*tool.Tool, bool) {
	for _, t := range s {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// IrisTools returns the set as iris chat request tools.
func (s Toolset) IrisTools() []iriscore.Tool {
	out := make([]iriscore.Tool, 0, len(s))
	for _, t := range s {
		out = append(out, t)
	}
	return out
}

// Execute runs a model tool call and packages the outcome as a tool result.
// Failures are reported in the result rather than returned.
func (s Toolset) Execute(ctx context.Context, call iriscore.ToolCall) iriscore.ToolResult {
	t, ok := s.Lookup(call.Name)
	if !ok {
		return errorResult(call.ID, fmt.Errorf("unknown tool %q", call.Name))
	}
	return execute(ctx, t, call)
}

func execute(ctx context.Context, t iristools.Tool, call iriscore.ToolCall) iriscore.ToolResult {
	value, err := t.Call(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		return errorResult(call.ID, err)
	}
	return iriscore.ToolResult{CallID: call.ID, Content: value}
}

func errorResult(callID string, err error) iriscore.ToolResult {
	return iriscore.ToolResult{
		CallID:  callID,
		Content: err.Error(),
		IsError: true,
	}
}

// SafeToolset exposes a Toolset under provider-safe names and maps tool
// calls back to the original tools.
type SafeToolset struct {
	tools   Toolset
	names   *tool.NameMapping
	renamed []renamedTool
}

// NewSafeToolset assigns a safe name to every tool in s.
func NewSafeToolset(s Toolset) *SafeToolset {
	names := tool.NewNameMapping()
	renamed := make([]renamedTool, 0, len(s))
	for _, t := range s {
		renamed = append(renamed, renamedTool{Tool: t, safe: names.Add(t.Name())})
	}
	return &SafeToolset{tools: s, names: names, renamed: renamed}
}

// Names returns the mapping from safe to original names.
func (s *SafeToolset) Names() *tool.NameMapping { return s.names }

// IrisTools returns the tools under their safe names.
func (s *SafeToolset) IrisTools() []iriscore.Tool {
	out := make([]iriscore.Tool, 0, len(s.renamed))
	for i := range s.renamed {
		out = append(out, s.renamed[i])
	}
	return out
}

// Execute restores the original tool name and runs the call.
func (s *SafeToolset) Execute(ctx context.Context, call iriscore.ToolCall) iriscore.ToolResult {
	restored := s.names.Restore([]iriscore.ToolCall{call})[0]
	return s.tools.Execute(ctx, restored)
}

type renamedTool struct {
	*tool.Tool
	safe string
}

func (r renamedTool) Name() string { return r.safe }

var (
	_ iristools.Tool = renamedTool{}
	_ iriscore.Tool  = renamedTool{}
)
