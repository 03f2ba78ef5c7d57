package mcp

import (
	"encoding/json"
	"fmt"
)

// fakeServer answers the subset of MCP used by the client. Tools are served
// two per page to exercise pagination.
type fakeServer struct {
	tools []Tool
}

func newFakeServer() *fakeServer {
	return &fakeServer{tools: []Tool{
		{Name: "echo", Description: "Echo text back", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		}},
		{Name: "add", Description: "Add two numbers"},
		{Name: "fail", Description: "Always fails"},
	}}
}

func (s *fakeServer) handle(req Message) (Message, bool) {
	if req.IsNotification() {
		return Message{}, false
	}
	resp := Message{JSONRPC: jsonRPCVersion, ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = mustJSON(InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      Implementation{Name: "fake", Version: "1"},
		})
	case "tools/list":
		var params listToolsParams
		_ = json.Unmarshal(req.Params, &params)
		start := 0
		if params.Cursor != "" {
			_, _ = fmt.Sscanf(params.Cursor, "page-%d", &start)
		}
		end := min(start+2, len(s.tools))
		result := listToolsResult{Tools: s.tools[start:end]}
		if end < len(s.tools) {
			result.NextCursor = fmt.Sprintf("page-%d", end)
		}
		resp.Result = mustJSON(result)
	case "tools/call":
		var params callToolParams
		_ = json.Unmarshal(req.Params, &params)
		switch params.Name {
		case "echo":
			resp.Result = mustJSON(ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: fmt.Sprint(params.Arguments["text"])}}})
		case "add":
			a, _ := params.Arguments["a"].(float64)
			b, _ := params.Arguments["b"].(float64)
			resp.Result = mustJSON(ToolsCallResult{StructuredContent: map[string]any{"sum": a + b}})
		case "fail":
			resp.Result = mustJSON(ToolsCallResult{IsError: true, Content: []ContentBlock{{Type: "text", Text: "disk full"}}})
		default:
			resp.Error = &RPCError{Code: -32602, Message: "unknown tool " + params.Name}
		}
	default:
		resp.Error = &RPCError{Code: -32601, Message: "method not found"}
	}
	return resp, true
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
