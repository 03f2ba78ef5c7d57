package tool

import (
	"context"
	"sync"
)

type fakeCall struct {
	name string
	args map[string]any
}

type fakeClient struct {
	mu          sync.Mutex
	descriptors []Descriptor
	result      any
	err         error
	calls       []fakeCall
}

func (c *fakeClient) ListTools(context.Context) ([]Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Descriptor(nil), c.descriptors...), nil
}

func (c *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, fakeCall{name: name, args: args})
	result, err := c.result, c.err
	c.mu.Unlock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return result, err
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func openLibraryDescriptor() Descriptor {
	return Descriptor{
		Name:        "openlibrary.search",
		Description: "Search books by title or author",
		Tags:        []string{"books"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"q":     map[string]any{"type": "string", "description": "Search query"},
				"limit": map[string]any{"type": "integer", "default": 10},
				"fields": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []any{"q"},
		},
		CallTemplate: &CallTemplate{Name: "openlibrary", Type: CallTemplateHTTP},
	}
}
