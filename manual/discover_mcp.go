package manual

import (
	"context"
	"fmt"

	"github.com/petal-labs/toolbridge/manual/mcp"
	"github.com/petal-labs/toolbridge/tool"
)

// DiscoverMCP lists the tools of an MCP server and returns them as a manual
// whose call template routes calls back to the same server. connection holds
// the template fields (url, headers, command, args, env).
func DiscoverMCP(ctx context.Context, name string, client *mcp.Client, connection map[string]any) (Manual, error) {
	info, err := client.Initialize(ctx)
	if err != nil {
		return Manual{}, fmt.Errorf("manual: initialize mcp %q: %w", name, err)
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return Manual{}, fmt.Errorf("manual: list mcp tools %q: %w", name, err)
	}

	tmpl := cloneMap(connection)
	if tmpl == nil {
		tmpl = map[string]any{}
	}
	tmpl["name"] = name
	tmpl["call_template_type"] = tool.CallTemplateMCP

	m := Manual{
		Name:         name,
		Version:      info.ServerInfo.Version,
		CallTemplate: tmpl,
		Tools:        make([]ToolSpec, 0, len(tools)),
	}
	for _, t := range tools {
		description := t.Description
		if description == "" {
			description = t.Title
		}
		m.Tools = append(m.Tools, ToolSpec{
			Name:        t.Name,
			Description: description,
			Tags:        []string{"mcp"},
			Inputs:      cloneMap(t.InputSchema),
			Outputs:     cloneMap(t.OutputSchema),
		})
	}
	return m, nil
}
