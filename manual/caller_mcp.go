package manual

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"slices"
	"sync"

	"github.com/petal-labs/toolbridge/manual/mcp"
	"github.com/petal-labs/toolbridge/tool"
)

// MCPCaller executes mcp call templates. It keeps one session per manual and
// reconnects after transport failures.
//
// Template fields: url and headers for streamable HTTP servers, or command,
// args, env and dir for stdio servers. tool_name overrides the remote tool
// name, which otherwise is the tool's local name.
type MCPCaller struct {
	HTTPClient *http.Client
	// Dial overrides transport construction. Tests use it to plug in fakes.
	Dial func(ctx context.Context, tmpl tool.CallTemplate) (mcp.Transport, error)

	mu       sync.Mutex
	sessions map[string]*mcp.Client
}

// Call implements Caller. The returned mcp.ToolsCallResult is a tool.Envelope.
func (m *MCPCaller) Call(ctx context.Context, call Call) (any, error) {
	client, err := m.session(ctx, call.Manual, call.Template)
	if err != nil {
		return nil, err
	}
	remote := call.Template.String("tool_name")
	if remote == "" {
		remote = LocalName(call.Manual, call.Tool)
	}
	result, err := client.CallTool(ctx, remote, call.Args)
	if err != nil {
		m.evictOnTransportError(call.Manual, client, err)
		return nil, err
	}
	return result, nil
}

// Discover connects to the MCP server described by fields and returns its
// tools as a manual.
func (m *MCPCaller) Discover(ctx context.Context, name string, fields map[string]any) (Manual, error) {
	tmpl := tool.CallTemplate{Name: name, Type: tool.CallTemplateMCP, Fields: maps.Clone(fields)}
	client, err := m.session(ctx, name, tmpl)
	if err != nil {
		return Manual{}, err
	}
	manual, err := DiscoverMCP(ctx, name, client, fields)
	if err != nil {
		m.evictOnTransportError(name, client, err)
		return Manual{}, err
	}
	return manual, nil
}

// Close ends every open session.
func (m *MCPCaller) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.mu.Unlock()

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(sessions)) {
		if err := sessions[key].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("manual: close mcp session %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MCPCaller) session(ctx context.Context, key string, tmpl tool.CallTemplate) (*mcp.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.sessions[key]; ok {
		return client, nil
	}

	dial := m.Dial
	if dial == nil {
		dial = m.dial
	}
	transport, err := dial(ctx, tmpl)
	if err != nil {
		return nil, fmt.Errorf("manual: connect mcp %q: %w", key, err)
	}
	client := mcp.NewClient(transport)
	if m.sessions == nil {
		m.sessions = make(map[string]*mcp.Client)
	}
	m.sessions[key] = client
	return client, nil
}

func (m *MCPCaller) dial(_ context.Context, tmpl tool.CallTemplate) (mcp.Transport, error) {
	if endpoint := tmpl.String("url"); endpoint != "" {
		headers := stringMap(tmpl.Fields["headers"])
		for key, value := range headers {
			headers[key] = os.ExpandEnv(value)
		}
		return mcp.NewHTTPTransport(mcp.HTTPTransportConfig{
			Endpoint: endpoint,
			Headers:  headers,
			Client:   m.HTTPClient,
		})
	}
	if command := tmpl.String("command"); command != "" {
		env := stringMap(tmpl.Fields["env"])
		for key, value := range env {
			env[key] = os.ExpandEnv(value)
		}
		return mcp.NewStdioTransport(mcp.StdioTransportConfig{
			Command: command,
			Args:    stringList(tmpl.Fields["args"]),
			Env:     env,
			Dir:     tmpl.String("dir"),
		})
	}
	return nil, errors.New("call template needs url or command")
}

// evictOnTransportError drops a session whose transport failed. JSON-RPC
// errors leave the session usable.
func (m *MCPCaller) evictOnTransportError(key string, client *mcp.Client, err error) {
	var rpcErr *mcp.RPCError
	if errors.As(err, &rpcErr) {
		return
	}
	m.mu.Lock()
	if m.sessions[key] == client {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	_ = client.Close(context.Background())
}
