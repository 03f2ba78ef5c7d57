package tool

import "encoding/json"

// JSONSchema renders the model back to a JSON-Schema object.
func (m ParamModel) JSONSchema() map[string]any {
	schema := objectSchema(m.Params)
	schema["additionalProperties"] = m.AllowExtra
	return schema
}

// MarshalJSONSchema renders the model as JSON-Schema bytes.
func (m ParamModel) MarshalJSONSchema() (json.RawMessage, error) {
	return json.Marshal(m.JSONSchema())
}

// JSONSchema renders a single field to a JSON-Schema object.
func (f Field) JSONSchema() map[string]any {
	var schema map[string]any
	switch f.Kind {
	case KindScalar:
		schema = map[string]any{"type": scalarTypeValue(f.Scalar, f.Nullable)}
		if len(f.Enum) > 0 {
			schema["enum"] = f.Enum
		}
	case KindSequence:
		items := map[string]any{}
		if f.Items != nil {
			items = f.Items.JSONSchema()
		}
		schema = map[string]any{"type": containerTypeValue("array", f.Nullable), "items": items}
	case KindObject:
		schema = objectSchema(f.Properties)
		schema["type"] = containerTypeValue("object", f.Nullable)
	default:
		schema = map[string]any{}
	}
	if f.Description != "" {
		schema["description"] = f.Description
	}
	return schema
}

func objectSchema(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, param := range params {
		child := param.Field.JSONSchema()
		if param.HasDefault {
			child["default"] = param.Default
		}
		props[param.Name] = child
		if param.Required {
			required = append(required, param.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func scalarTypeValue(t ScalarType, nullable bool) any {
	if nullable && t != TypeNull {
		return []string{string(t), string(TypeNull)}
	}
	return string(t)
}

func containerTypeValue(t string, nullable bool) any {
	if nullable {
		return []string{t, string(TypeNull)}
	}
	return t
}
