package manual

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/petal-labs/toolbridge/tool"
)

const maxOpenAPISchemaDepth = 24

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// FromOpenAPI converts an OpenAPI 3 document (JSON or YAML) into a manual with
// one http tool per operation. baseURL overrides the document's first server.
//
// Path, query and header parameters become top-level inputs; a JSON request
// body becomes the "body" input.
func FromOpenAPI(name string, data []byte, baseURL string) (Manual, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return Manual{}, fmt.Errorf("manual: load openapi %q: %w", name, err)
	}

	if baseURL == "" && len(doc.Servers) > 0 && doc.Servers[0] != nil {
		baseURL = doc.Servers[0].URL
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return Manual{}, errors.New("manual: openapi document has no server url; a base url is required")
	}

	m := Manual{Name: name, Tools: []ToolSpec{}}
	if doc.Info != nil {
		m.Version = doc.Info.Version
	}

	paths := doc.Paths.Map()
	seen := map[string]int{}
	for _, path := range slices.Sorted(maps.Keys(paths)) {
		item := paths[path]
		if item == nil {
			continue
		}
		ops := item.Operations()
		for _, method := range slices.Sorted(maps.Keys(ops)) {
			op := ops[method]
			if op == nil {
				continue
			}
			spec := operationTool(baseURL, path, method, item.Parameters, op)
			seen[spec.Name]++
			if n := seen[spec.Name]; n > 1 {
				spec.Name = fmt.Sprintf("%s_%d", spec.Name, n)
			}
			m.Tools = append(m.Tools, spec)
		}
	}
	return m, nil
}

func operationTool(baseURL, path, method string, shared openapi3.Parameters, op *openapi3.Operation) ToolSpec {
	name := sanitizeToolName(op.OperationID)
	if name == "" {
		name = sanitizeToolName(strings.ToLower(method) + "_" + path)
	}
	description := strings.TrimSpace(op.Summary)
	if description == "" {
		description = strings.TrimSpace(op.Description)
	}

	properties := map[string]any{}
	var (
		required     []any
		headerFields []any
	)
	// Operation parameters override path-level ones with the same name and location.
	params := map[string]*openapi3.Parameter{}
	for _, list := range []openapi3.Parameters{shared, op.Parameters} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			params[ref.Value.In+":"+ref.Value.Name] = ref.Value
		}
	}
	for _, key := range slices.Sorted(maps.Keys(params)) {
		p := params[key]
		if p.In == openapi3.ParameterInCookie {
			continue
		}
		schema := schemaMap(p.Schema, 0)
		if p.Description != "" {
			if _, ok := schema["description"]; !ok {
				schema["description"] = p.Description
			}
		}
		properties[p.Name] = schema
		if p.Required || p.In == openapi3.ParameterInPath {
			required = append(required, p.Name)
		}
		if p.In == openapi3.ParameterInHeader {
			headerFields = append(headerFields, p.Name)
		}
	}

	contentType := "application/json"
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body := op.RequestBody.Value
		media, mediaType := bodyMedia(body.Content)
		if media != nil {
			contentType = mediaType
			schema := schemaMap(media.Schema, 0)
			if body.Description != "" {
				if _, ok := schema["description"]; !ok {
					schema["description"] = body.Description
				}
			}
			properties[defaultBodyField] = schema
			if body.Required {
				required = append(required, defaultBodyField)
			}
		}
	}

	inputs := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		inputs["required"] = required
	}

	tmpl := map[string]any{
		"call_template_type": tool.CallTemplateHTTP,
		"url":                baseURL + path,
		"http_method":        strings.ToUpper(method),
		"content_type":       contentType,
		"body_field":         defaultBodyField,
	}
	if len(headerFields) > 0 {
		tmpl["header_fields"] = headerFields
	}

	return ToolSpec{
		Name:         name,
		Description:  description,
		Tags:         slices.Clone(op.Tags),
		Inputs:       inputs,
		Outputs:      responseSchema(op.Responses),
		CallTemplate: tmpl,
	}
}

func bodyMedia(content openapi3.Content) (*openapi3.MediaType, string) {
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "text/plain"} {
		if media := content.Get(mediaType); media != nil {
			return media, mediaType
		}
	}
	return nil, ""
}

func responseSchema(responses *openapi3.Responses) map[string]any {
	if responses == nil {
		return nil
	}
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		ref := responses.Status(status)
		if ref == nil || ref.Value == nil {
			continue
		}
		if media := ref.Value.Content.Get("application/json"); media != nil && media.Schema != nil {
			return schemaMap(media.Schema, 0)
		}
	}
	return nil
}

// schemaMap renders a resolved OpenAPI schema as a plain JSON Schema map.
// Schemas nested deeper than maxOpenAPISchemaDepth become unconstrained.
func schemaMap(ref *openapi3.SchemaRef, depth int) map[string]any {
	out := map[string]any{}
	if ref == nil || ref.Value == nil || depth > maxOpenAPISchemaDepth {
		return out
	}
	s := ref.Value

	types := s.Type.Slice()
	if s.Nullable && len(types) > 0 && !slices.Contains(types, "null") {
		types = append(slices.Clone(types), "null")
	}
	switch len(types) {
	case 0:
	case 1:
		out["type"] = types[0]
	default:
		list := make([]any, len(types))
		for i, t := range types {
			list[i] = t
		}
		out["type"] = list
	}

	description := s.Description
	if description == "" {
		description = s.Title
	}
	if description != "" {
		out["description"] = description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		out["enum"] = slices.Clone(s.Enum)
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Items != nil {
		out["items"] = schemaMap(s.Items, depth+1)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for key, prop := range s.Properties {
			props[key] = schemaMap(prop, depth+1)
		}
		out["properties"] = props
		if _, ok := out["type"]; !ok {
			out["type"] = "object"
		}
	}
	if len(s.Required) > 0 {
		required := make([]any, 0, len(s.Required))
		for _, name := range s.Required {
			if _, ok := s.Properties[name]; ok {
				required = append(required, name)
			}
		}
		if len(required) > 0 {
			out["required"] = required
		}
	}
	for key, refs := range map[string]openapi3.SchemaRefs{"oneOf": s.OneOf, "anyOf": s.AnyOf, "allOf": s.AllOf} {
		if len(refs) == 0 {
			continue
		}
		list := make([]any, 0, len(refs))
		for _, item := range refs {
			list = append(list, schemaMap(item, depth+1))
		}
		out[key] = list
	}
	return out
}

func sanitizeToolName(raw string) string {
	name := unsafeNameChars.ReplaceAllString(strings.TrimSpace(raw), "_")
	return strings.Trim(name, "_")
}
