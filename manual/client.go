package manual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/petal-labs/toolbridge/tool"
)

var (
	// ErrToolNotFound is returned when CallTool names no registered tool.
	ErrToolNotFound = errors.New("manual: tool not found")
	// ErrNoCaller is returned when no caller handles a tool's call template type.
	ErrNoCaller = errors.New("manual: no caller for call template type")
)

// Call is one dispatched invocation.
type Call struct {
	Tool     string
	Manual   string
	Template tool.CallTemplate
	Args     map[string]any
}

// Caller executes calls for one or more call template types.
type Caller interface {
	Call(ctx context.Context, call Call) (any, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, call Call) (any, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, call Call) (any, error) { return f(ctx, call) }

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a registry of manuals that implements tool.Client. Manuals may be
// registered and removed at any time; ListTools always reflects the current
// registry in registration order.
type Client struct {
	logger *slog.Logger
	mcp    *MCPCaller

	mu      sync.RWMutex
	manuals []Manual
	callers map[string]Caller
}

// NewClient returns a client with HTTP, SSE, streamable HTTP and MCP callers.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpCaller := &HTTPCaller{Client: cfg.HTTPClient}
	mcpCaller := &MCPCaller{HTTPClient: cfg.HTTPClient}

	return &Client{
		logger: logger,
		mcp:    mcpCaller,
		callers: map[string]Caller{
			tool.CallTemplateHTTP:           httpCaller,
			tool.CallTemplateSSE:            httpCaller,
			tool.CallTemplateStreamableHTTP: httpCaller,
			tool.CallTemplateMCP:            mcpCaller,
		},
	}
}

// MCP returns the client's MCP caller, which also discovers MCP manuals.
func (c *Client) MCP() *MCPCaller { return c.mcp }

// SetCaller installs caller for a call template type.
func (c *Client) SetCaller(templateType string, caller Caller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller == nil {
		delete(c.callers, templateType)
		return
	}
	c.callers[templateType] = caller
}

// Register adds a manual, replacing any manual with the same name in place.
func (c *Client) Register(m Manual) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return errors.New("manual: name is required")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("manual: name %q must not contain '.'", name)
	}
	m.Name = name

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.manuals {
		if c.manuals[i].Name == name {
			c.manuals[i] = m
			c.logger.Debug("manual: replaced", "manual", name, "tools", len(m.Tools))
			return nil
		}
	}
	c.manuals = append(c.manuals, m)
	c.logger.Debug("manual: registered", "manual", name, "tools", len(m.Tools))
	return nil
}

// Deregister removes a manual. It reports whether the manual was present.
func (c *Client) Deregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.manuals {
		if c.manuals[i].Name == name {
			c.manuals = append(c.manuals[:i], c.manuals[i+1:]...)
			return true
		}
	}
	return false
}

// Manuals returns registered manual names in registration order.
func (c *Client) Manuals() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.manuals))
	for _, m := range c.manuals {
		names = append(names, m.Name)
	}
	return names
}

// ListTools returns a fresh descriptor for every registered tool.
func (c *Client) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []tool.Descriptor
	for _, m := range c.manuals {
		for _, spec := range m.Tools {
			out = append(out, m.descriptor(spec))
		}
	}
	return out, nil
}

// CallTool dispatches a call to the caller for the tool's call template type.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	call, caller, err := c.resolve(name, args)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("manual: calling tool",
		"tool", name,
		"call_template_type", call.Template.Type,
	)
	return caller.Call(ctx, call)
}

func (c *Client) resolve(name string, args map[string]any) (Call, Caller, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.manuals {
		for _, spec := range m.Tools {
			if QualifiedName(m.Name, spec.Name) != name {
				continue
			}
			tmpl := m.callTemplate(spec)
			if tmpl == nil {
				return Call{}, nil, fmt.Errorf("%w: tool %q has no call template", ErrNoCaller, name)
			}
			caller, ok := c.callers[tmpl.Type]
			if !ok {
				return Call{}, nil, fmt.Errorf("%w %q (tool %q)", ErrNoCaller, tmpl.Type, name)
			}
			return Call{Tool: name, Manual: m.Name, Template: *tmpl, Args: args}, caller, nil
		}
	}
	return Call{}, nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
}

// Close releases MCP sessions and idle pooled HTTP connections.
func (c *Client) Close(ctx context.Context) error {
	sharedHTTPClients.closeIdle()
	return c.mcp.Close(ctx)
}

var _ tool.Client = (*Client)(nil)
