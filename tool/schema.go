package tool

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the shape of a parameter field.
type Kind string

const (
	KindScalar   Kind = "scalar"
	KindSequence Kind = "sequence"
	KindObject   Kind = "object"
	KindOpaque   Kind = "opaque"
)

// ScalarType is the primitive type of a scalar field.
type ScalarType string

const (
	TypeString  ScalarType = "string"
	TypeInteger ScalarType = "integer"
	TypeNumber  ScalarType = "number"
	TypeBoolean ScalarType = "boolean"
	TypeNull    ScalarType = "null"
)

// primitiveParamName names the single parameter synthesized for a
// non-object input schema.
const primitiveParamName = "value"

const maxSchemaDepth = 32

// Field is one node of a parameter model.
// Exactly one of Scalar, Items, or Properties is meaningful, selected by Kind.
type Field struct {
	Kind        Kind
	Scalar      ScalarType
	Items       *Field
	Properties  []Param
	Nullable    bool
	Enum        []any
	Description string
}

// Param is a named field of an object.
type Param struct {
	Name       string
	Field      Field
	Required   bool
	Default    any
	HasDefault bool
}

// ParamModel is the typed parameter model of a translated tool.
type ParamModel struct {
	Params []Param
	// AllowExtra is set when the input schema declares no properties or
	// admits additionalProperties; undeclared arguments are then accepted and
	// passed through verbatim.
	AllowExtra bool
}

// Scalar returns a scalar field.
func Scalar(t ScalarType) Field { return Field{Kind: KindScalar, Scalar: t} }

// Sequence returns a sequence field of items.
func Sequence(items Field) Field { return Field{Kind: KindSequence, Items: &items} }

// Object returns an object field with the given properties.
func Object(props ...Param) Field { return Field{Kind: KindObject, Properties: props} }

// Opaque returns a field that accepts any value.
func Opaque() Field { return Field{Kind: KindOpaque} }

// Lookup returns the named parameter.
func (m ParamModel) Lookup(name string) (Param, bool) {
	for _, param := range m.Params {
		if param.Name == name {
			return param, true
		}
	}
	return Param{}, false
}

// Names returns parameter names in model order.
func (m ParamModel) Names() []string {
	names := make([]string, 0, len(m.Params))
	for _, param := range m.Params {
		names = append(names, param.Name)
	}
	return names
}

// RequiredNames returns the names of mandatory parameters in model order.
func (m ParamModel) RequiredNames() []string {
	names := make([]string, 0, len(m.Params))
	for _, param := range m.Params {
		if param.Required {
			names = append(names, param.Name)
		}
	}
	return names
}

// ModelFromSchema builds a parameter model from a JSON-Schema object.
//
// Unknown or unsupported shapes degrade to opaque fields. Required names with
// no matching property become required opaque parameters. An error is
// returned only for structural malformation: properties that is not an
// object, or required that is not an array of strings.
func ModelFromSchema(schema map[string]any) (ParamModel, error) {
	if len(schema) == 0 {
		return ParamModel{AllowExtra: true}, nil
	}

	var props map[string]any
	if raw, ok := schema["properties"]; ok && raw != nil {
		typed, ok := raw.(map[string]any)
		if !ok {
			return ParamModel{}, fmt.Errorf("properties must be an object, got %T", raw)
		}
		props = typed
	}

	required, err := requiredList(schema["required"])
	if err != nil {
		return ParamModel{}, err
	}

	if len(props) == 0 {
		if primitive, ok := primitiveSchemaType(schema); ok {
			field := fieldFromSchema(schema, 0)
			if field.Kind == KindOpaque {
				field = Scalar(primitive)
			}
			param := Param{Name: primitiveParamName, Field: field, Required: true}
			return ParamModel{Params: []Param{param}}, nil
		}
		return ParamModel{Params: undeclaredRequired(props, required), AllowExtra: true}, nil
	}

	requiredSet := make(map[string]struct{}, len(required))
	for _, name := range required {
		requiredSet[name] = struct{}{}
	}
	params := paramsFromProperties(props, requiredSet, 0)
	params = append(params, undeclaredRequired(props, required)...)
	return ParamModel{Params: params, AllowExtra: allowsAdditional(schema)}, nil
}

// undeclaredRequired returns required opaque params for required names that
// props does not declare, in first-seen order.
func undeclaredRequired(props map[string]any, required []string) []Param {
	var out []Param
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		if _, ok := props[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, Param{Name: name, Field: Opaque(), Required: true})
	}
	return out
}

// allowsAdditional reports whether additionalProperties admits undeclared
// keys: true or any schema object. Absent means closed.
func allowsAdditional(schema map[string]any) bool {
	switch typed := schema["additionalProperties"].(type) {
	case bool:
		return typed
	case map[string]any:
		return true
	default:
		return false
	}
}

func requiredList(raw any) ([]string, error) {
	switch typed := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return typed, nil
	case []any:
		out := make([]string, 0, len(typed))
		for i, item := range typed {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("required[%d] must be a string, got %T", i, item)
			}
			out = append(out, name)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("required must be an array of strings, got %T", raw)
	}
}

func primitiveSchemaType(schema map[string]any) (ScalarType, bool) {
	typeName, ok := schema["type"].(string)
	if !ok {
		return "", false
	}
	switch t := ScalarType(strings.ToLower(strings.TrimSpace(typeName))); t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return t, true
	default:
		return "", false
	}
}

func paramsFromProperties(props map[string]any, requiredSet map[string]struct{}, depth int) []Param {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	params := make([]Param, 0, len(keys))
	for _, key := range keys {
		_, required := requiredSet[key]
		param := Param{
			Name:     key,
			Field:    fieldFromSchema(props[key], depth+1),
			Required: required,
		}
		if child, ok := props[key].(map[string]any); ok {
			if value, ok := child["default"]; ok {
				param.Default = value
				param.HasDefault = true
			}
		}
		params = append(params, param)
	}
	return params
}

func fieldFromSchema(raw any, depth int) Field {
	schema, ok := raw.(map[string]any)
	if !ok || depth > maxSchemaDepth {
		return Opaque()
	}

	field := shapeFromSchema(schema, depth)
	if desc, ok := schema["description"].(string); ok {
		field.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok && field.Kind == KindScalar {
		field.Enum = enum
	}
	return field
}

func shapeFromSchema(schema map[string]any, depth int) Field {
	if _, ok := schema["$ref"]; ok {
		return Opaque()
	}
	if _, ok := schema["allOf"]; ok {
		return Opaque()
	}
	for _, key := range []string{"anyOf", "oneOf"} {
		if alts, ok := schema[key].([]any); ok {
			return fieldFromAlternatives(alts, depth)
		}
	}

	switch typed := schema["type"].(type) {
	case string:
		return fieldForType(typed, schema, depth)
	case []any:
		names := make([]string, 0, len(typed))
		for _, item := range typed {
			name, ok := item.(string)
			if !ok {
				return Opaque()
			}
			names = append(names, name)
		}
		return fieldForTypeUnion(names, schema, depth)
	case []string:
		return fieldForTypeUnion(typed, schema, depth)
	case nil:
		if props, ok := schema["properties"].(map[string]any); ok {
			return objectField(props, schema, depth)
		}
		if _, ok := schema["items"]; ok {
			return fieldForType("array", schema, depth)
		}
		return Opaque()
	default:
		return Opaque()
	}
}

// fieldForTypeUnion keeps a single non-null type, marking it nullable when
// null was part of the union. integer|number widens to number.
func fieldForTypeUnion(names []string, schema map[string]any, depth int) Field {
	nullable := false
	kept := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == string(TypeNull) {
			nullable = true
			continue
		}
		if !slices.Contains(kept, name) {
			kept = append(kept, name)
		}
	}
	slices.Sort(kept)

	var field Field
	switch {
	case len(kept) == 0:
		field = Scalar(TypeNull)
	case len(kept) == 1:
		field = fieldForType(kept[0], schema, depth)
	case len(kept) == 2 && kept[0] == string(TypeInteger) && kept[1] == string(TypeNumber):
		field = Scalar(TypeNumber)
	default:
		return Opaque()
	}
	if field.Kind != KindOpaque {
		field.Nullable = field.Nullable || nullable
	}
	return field
}

func fieldFromAlternatives(alts []any, depth int) Field {
	var (
		picked   *Field
		nullable bool
	)
	for _, alt := range alts {
		field := fieldFromSchema(alt, depth+1)
		if field.Kind == KindScalar && field.Scalar == TypeNull {
			nullable = true
			continue
		}
		if picked != nil {
			return Opaque()
		}
		picked = &field
	}
	if picked == nil {
		return Scalar(TypeNull)
	}
	if picked.Kind == KindOpaque {
		return Opaque()
	}
	field := *picked
	field.Nullable = field.Nullable || nullable
	return field
}

func fieldForType(typeName string, schema map[string]any, depth int) Field {
	switch strings.ToLower(strings.TrimSpace(typeName)) {
	case "string":
		return Scalar(TypeString)
	case "integer":
		return Scalar(TypeInteger)
	case "number":
		return Scalar(TypeNumber)
	case "boolean":
		return Scalar(TypeBoolean)
	case "null":
		return Scalar(TypeNull)
	case "array":
		items := Opaque()
		if raw, ok := schema["items"]; ok {
			items = fieldFromSchema(raw, depth+1)
		}
		return Sequence(items)
	case "object":
		props, _ := schema["properties"].(map[string]any)
		return objectField(props, schema, depth)
	default:
		return Opaque()
	}
}

func objectField(props map[string]any, schema map[string]any, depth int) Field {
	requiredSet := make(map[string]struct{})
	if names, err := requiredList(schema["required"]); err == nil {
		for _, name := range names {
			requiredSet[name] = struct{}{}
		}
	}
	return Object(paramsFromProperties(props, requiredSet, depth)...)
}
