package tool

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	iriscore "github.com/petal-labs/iris/core"
	iristools "github.com/petal-labs/iris/tools"
)

// Metadata is the provenance carried by a translated tool.
type Metadata struct {
	ManualName       string   `json:"manual_name"`
	CallTemplateName string   `json:"call_template_name"`
	CallTemplateType string   `json:"call_template_type"`
	Tags             []string `json:"tags,omitempty"`
	UTCPTool         bool     `json:"utcp_tool"`
}

// Tool is a descriptor translated into a callable for the agent framework.
// It holds the client handle and the tool name, never the descriptor.
type Tool struct {
	name        string
	description string
	params      ParamModel
	output      *Field
	metadata    Metadata
	client      Client
}

// Translate converts a descriptor into a Tool. It is pure: the client is
// captured but not contacted.
func Translate(client Client, desc Descriptor) (*Tool, error) {
	if strings.TrimSpace(desc.Name) == "" {
		return nil, newToolError(ErrorCodeMalformedDescriptor, "", "descriptor name is empty", nil)
	}

	params, err := ModelFromSchema(desc.InputSchema)
	if err != nil {
		return nil, withToolErrorDetails(
			newToolError(ErrorCodeMalformedDescriptor, desc.Name, "input schema: "+err.Error(), err),
			map[string]any{"schema": "inputs"},
		)
	}

	var output *Field
	if len(desc.OutputSchema) > 0 {
		field := fieldFromSchema(desc.OutputSchema, 0)
		output = &field
	}

	return &Tool{
		name:        desc.Name,
		description: desc.Description,
		params:      params,
		output:      output,
		metadata:    metadataFor(desc),
		client:      client,
	}, nil
}

func metadataFor(desc Descriptor) Metadata {
	meta := Metadata{
		ManualName:       desc.ManualName(),
		CallTemplateName: unknownName,
		CallTemplateType: unknownName,
		Tags:             slices.Clone(desc.Tags),
		UTCPTool:         true,
	}
	if desc.CallTemplate != nil {
		if name := strings.TrimSpace(desc.CallTemplate.Name); name != "" {
			meta.CallTemplateName = name
		}
		if kind := strings.TrimSpace(desc.CallTemplate.Type); kind != "" {
			meta.CallTemplateType = kind
		}
	}
	return meta
}

// Name returns the tool name exactly as the client reported it.
func (t *Tool) Name() string { return t.name }

// Description returns the tool description, possibly empty.
func (t *Tool) Description() string { return t.description }

// Params returns the parameter model.
func (t *Tool) Params() ParamModel { return t.params }

// Output returns the declared output shape, if any.
func (t *Tool) Output() (Field, bool) {
	if t.output == nil {
		return Field{}, false
	}
	return *t.output, true
}

// Metadata returns a copy of the tool's provenance.
func (t *Tool) Metadata() Metadata {
	meta := t.metadata
	meta.Tags = slices.Clone(meta.Tags)
	return meta
}

// Run is the invocation thunk: it forwards args verbatim to the client and
// adapts the result. It performs no validation.
func (t *Tool) Run(ctx context.Context, args map[string]any) (any, error) {
	started := time.Now()
	result, err := t.run(ctx, args)

	observation := InvokeObservation{
		ToolName:         t.name,
		ManualName:       t.metadata.ManualName,
		CallTemplateType: t.metadata.CallTemplateType,
		Duration:         time.Since(started),
		Success:          err == nil,
		ErrorCode:        ErrorCode(err),
	}
	emitInvokeObservation(observation)
	return result, err
}

func (t *Tool) run(ctx context.Context, args map[string]any) (any, error) {
	if t.client == nil {
		return nil, newToolError(ErrorCodeInvocationFailed, t.name, "tool has no client", nil)
	}
	if args == nil {
		args = map[string]any{}
	}

	raw, err := t.client.CallTool(ctx, t.name, args)
	if err != nil {
		return nil, newToolError(ErrorCodeInvocationFailed, t.name, "", err)
	}

	value, err := AdaptResult(raw)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			toolErr.Tool = t.name
		}
		return nil, err
	}
	return value, nil
}

// Invoke validates args against the parameter model, then runs the tool.
// The client is never contacted when validation fails.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	validated, err := t.params.Validate(args)
	if err != nil {
		return nil, newToolError(ErrorCodeInvalidArguments, t.name, "", err)
	}
	return t.Run(ctx, validated)
}

// InvokeText invokes the tool and renders the result as text.
func (t *Tool) InvokeText(ctx context.Context, args map[string]any) (string, error) {
	value, err := t.Invoke(ctx, args)
	if err != nil {
		return "", err
	}
	return RenderText(value)
}

// Schema renders the parameter model for the agent framework.
func (t *Tool) Schema() iristools.ToolSchema {
	raw, err := t.params.MarshalJSONSchema()
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	return iristools.ToolSchema{JSONSchema: raw}
}

// Call decodes framework-supplied JSON arguments and invokes the tool.
func (t *Tool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args := map[string]any{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, newToolError(ErrorCodeInvalidArguments, t.name, "arguments must be a JSON object", err)
		}
	}
	return t.Invoke(ctx, args)
}

var (
	_ iristools.Tool = (*Tool)(nil)
	_ iriscore.Tool  = (*Tool)(nil)
)
