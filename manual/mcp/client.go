package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	// ProtocolVersion is the MCP revision requested during initialize.
	ProtocolVersion = "2025-06-18"

	maxListPages = 100
)

// Transport moves JSON-RPC messages to and from a server.
type Transport interface {
	Send(ctx context.Context, message Message) error
	Receive(ctx context.Context) (Message, error)
	Close(ctx context.Context) error
}

// ClientInfo identifies this client during initialize.
var ClientInfo = Implementation{Name: "toolbridge", Version: "dev"}

// Client is an MCP client over one transport. Requests are serialized; the
// session is initialized lazily on first use.
type Client struct {
	transport Transport

	mu         sync.Mutex
	nextID     int64
	initResult *InitializeResult
}

// NewClient returns a client for transport.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport, nextID: 1}
}

// Initialize negotiates the session. Later calls return the cached result.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Client) initializeLocked(ctx context.Context) (InitializeResult, error) {
	if c.initResult != nil {
		return *c.initResult, nil
	}

	var result InitializeResult
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo,
	}
	if err := c.roundTrip(ctx, "initialize", params, &result); err != nil {
		return InitializeResult{}, err
	}
	if err := c.send(ctx, Message{JSONRPC: jsonRPCVersion, Method: "notifications/initialized"}); err != nil {
		return InitializeResult{}, &RequestError{Method: "notifications/initialized", Err: err}
	}
	c.initResult = &result
	return result, nil
}

// ListTools returns every tool the server exposes, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.initializeLocked(ctx); err != nil {
		return nil, err
	}

	var (
		tools  []Tool
		cursor string
	)
	for page := 0; page < maxListPages; page++ {
		var result listToolsResult
		if err := c.roundTrip(ctx, "tools/list", listToolsParams{Cursor: cursor}, &result); err != nil {
			return nil, err
		}
		tools = append(tools, result.Tools...)
		if result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
	return nil, &RequestError{Method: "tools/list", Err: fmt.Errorf("more than %d pages", maxListPages)}
}

// CallTool runs one tool. A result with IsError set is returned without error;
// use Payload to surface it.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (ToolsCallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.initializeLocked(ctx); err != nil {
		return ToolsCallResult{}, err
	}

	var result ToolsCallResult
	if err := c.roundTrip(ctx, "tools/call", callToolParams{Name: name, Arguments: args}, &result); err != nil {
		return ToolsCallResult{}, err
	}
	return result, nil
}

// Close closes the transport.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.transport == nil {
		return nil
	}
	return c.transport.Close(ctx)
}

func (c *Client) roundTrip(ctx context.Context, method string, params any, out any) error {
	if c.transport == nil {
		return &RequestError{Method: method, Err: errors.New("transport is nil")}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return &RequestError{Method: method, Err: fmt.Errorf("encode params: %w", err)}
	}

	id := c.nextID
	c.nextID++
	if err := c.send(ctx, Message{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: raw}); err != nil {
		return &RequestError{Method: method, Err: err}
	}

	for {
		response, err := c.transport.Receive(ctx)
		if err != nil {
			return &RequestError{Method: method, Err: err}
		}
		if response.JSONRPC != "" && response.JSONRPC != jsonRPCVersion {
			return &RequestError{Method: method, Err: fmt.Errorf("unsupported jsonrpc version %q", response.JSONRPC)}
		}
		// Server notifications and stale responses are not ours.
		if response.Method != "" || response.ID != id {
			continue
		}
		if response.Error != nil {
			return &RequestError{Method: method, Err: response.Error}
		}
		if out == nil || len(response.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(response.Result, out); err != nil {
			return &RequestError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.transport.Send(ctx, message)
}
