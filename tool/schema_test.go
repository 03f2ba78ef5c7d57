package tool

import (
	"reflect"
	"testing"
)

func TestModelFromSchemaRequiredAndDefaults(t *testing.T) {
	model, err := ModelFromSchema(openLibraryDescriptor().InputSchema)
	if err != nil {
		t.Fatalf("ModelFromSchema() error = %v", err)
	}
	if got, want := model.Names(), []string{"fields", "limit", "q"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if got, want := model.RequiredNames(), []string{"q"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("RequiredNames() = %v, want %v", got, want)
	}
	if model.AllowExtra {
		t.Fatal("AllowExtra = true, want false for declared properties")
	}

	limit, ok := model.Lookup("limit")
	if !ok {
		t.Fatal("Lookup(limit) = false")
	}
	if !limit.HasDefault || limit.Default != 10 {
		t.Fatalf("limit default = %v (has=%v), want 10", limit.Default, limit.HasDefault)
	}
	if limit.Field.Kind != KindScalar || limit.Field.Scalar != TypeInteger {
		t.Fatalf("limit field = %+v, want integer scalar", limit.Field)
	}

	fields, _ := model.Lookup("fields")
	if fields.Field.Kind != KindSequence || fields.Field.Items == nil || fields.Field.Items.Scalar != TypeString {
		t.Fatalf("fields field = %+v, want sequence of string", fields.Field)
	}

	q, _ := model.Lookup("q")
	if q.Field.Description != "Search query" {
		t.Fatalf("q description = %q, want %q", q.Field.Description, "Search query")
	}
}

func TestFieldFromSchemaFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		schema   any
		kind     Kind
		scalar   ScalarType
		nullable bool
	}{
		{name: "unresolved ref", schema: map[string]any{"$ref": "#/components/schemas/Book"}, kind: KindOpaque},
		{name: "unknown type", schema: map[string]any{"type": "date"}, kind: KindOpaque},
		{name: "incompatible union", schema: map[string]any{"type": []any{"string", "integer"}}, kind: KindOpaque},
		{name: "nullable union", schema: map[string]any{"type": []any{"string", "null"}}, kind: KindScalar, scalar: TypeString, nullable: true},
		{name: "numeric union", schema: map[string]any{"type": []any{"integer", "number"}}, kind: KindScalar, scalar: TypeNumber},
		{name: "anyOf with null", schema: map[string]any{"anyOf": []any{map[string]any{"type": "boolean"}, map[string]any{"type": "null"}}}, kind: KindScalar, scalar: TypeBoolean, nullable: true},
		{name: "oneOf mixed", schema: map[string]any{"oneOf": []any{map[string]any{"type": "string"}, map[string]any{"type": "number"}}}, kind: KindOpaque},
		{name: "allOf", schema: map[string]any{"allOf": []any{map[string]any{"type": "string"}}}, kind: KindOpaque},
		{name: "boolean schema", schema: true, kind: KindOpaque},
		{name: "no type", schema: map[string]any{"description": "anything"}, kind: KindOpaque},
		{name: "implicit object", schema: map[string]any{"properties": map[string]any{"a": map[string]any{"type": "string"}}}, kind: KindObject},
		{name: "array without items", schema: map[string]any{"type": "array"}, kind: KindSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := fieldFromSchema(tt.schema, 0)
			if field.Kind != tt.kind {
				t.Fatalf("Kind = %q, want %q", field.Kind, tt.kind)
			}
			if tt.kind == KindScalar && field.Scalar != tt.scalar {
				t.Fatalf("Scalar = %q, want %q", field.Scalar, tt.scalar)
			}
			if field.Nullable != tt.nullable {
				t.Fatalf("Nullable = %v, want %v", field.Nullable, tt.nullable)
			}
		})
	}
}

func TestFieldFromSchemaNestedObject(t *testing.T) {
	field := fieldFromSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
			"zip":  map[string]any{"type": "string"},
		},
		"required": []any{"city"},
	}, 0)
	if field.Kind != KindObject {
		t.Fatalf("Kind = %q, want object", field.Kind)
	}
	if len(field.Properties) != 2 {
		t.Fatalf("len(Properties) = %d, want 2", len(field.Properties))
	}
	if !field.Properties[0].Required || field.Properties[1].Required {
		t.Fatalf("required flags = %v/%v, want true/false", field.Properties[0].Required, field.Properties[1].Required)
	}
}

func TestModelFromSchemaMalformed(t *testing.T) {
	tests := map[string]map[string]any{
		"properties not object": {"type": "object", "properties": []any{"q"}},
		"required not array":    {"type": "object", "properties": map[string]any{"q": map[string]any{}}, "required": "q"},
		"required not strings":  {"type": "object", "properties": map[string]any{"q": map[string]any{}}, "required": []any{1}},
	}
	for name, schema := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ModelFromSchema(schema); err == nil {
				t.Fatal("ModelFromSchema() error = nil, want non-nil")
			}
		})
	}
}

func TestModelFromSchemaUndeclaredRequired(t *testing.T) {
	model, err := ModelFromSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
		"required":   []any{"q", "api_key", "api_key"},
	})
	if err != nil {
		t.Fatalf("ModelFromSchema() error = %v", err)
	}
	if got, want := model.RequiredNames(), []string{"q", "api_key"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("RequiredNames() = %v, want %v", got, want)
	}
	if model.AllowExtra {
		t.Fatal("AllowExtra = true, want false")
	}

	bare, err := ModelFromSchema(map[string]any{"type": "object", "required": []any{"token"}})
	if err != nil {
		t.Fatalf("ModelFromSchema(no properties) error = %v", err)
	}
	if !bare.AllowExtra || !reflect.DeepEqual(bare.RequiredNames(), []string{"token"}) {
		t.Fatalf("ModelFromSchema(no properties) = %+v, want required token allowing extra", bare)
	}
}

func TestModelFromSchemaAdditionalProperties(t *testing.T) {
	props := map[string]any{"q": map[string]any{"type": "string"}}
	tests := []struct {
		name       string
		additional any
		want       bool
	}{
		{"absent", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"schema", map[string]any{"type": "string"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := map[string]any{"type": "object", "properties": props}
			if tt.additional != nil {
				schema["additionalProperties"] = tt.additional
			}
			model, err := ModelFromSchema(schema)
			if err != nil {
				t.Fatalf("ModelFromSchema() error = %v", err)
			}
			if model.AllowExtra != tt.want {
				t.Fatalf("AllowExtra = %v, want %v", model.AllowExtra, tt.want)
			}
			again, err := ModelFromSchema(model.JSONSchema())
			if err != nil {
				t.Fatalf("ModelFromSchema(rendered) error = %v", err)
			}
			if again.AllowExtra != tt.want {
				t.Fatalf("rendered AllowExtra = %v, want %v", again.AllowExtra, tt.want)
			}
		})
	}
}

func TestModelFromSchemaPrimitiveInput(t *testing.T) {
	model, err := ModelFromSchema(map[string]any{"type": "integer", "description": "count"})
	if err != nil {
		t.Fatalf("ModelFromSchema() error = %v", err)
	}
	if len(model.Params) != 1 {
		t.Fatalf("len(Params) = %d, want 1", len(model.Params))
	}
	param := model.Params[0]
	if param.Name != "value" || !param.Required || param.Field.Scalar != TypeInteger {
		t.Fatalf("param = %+v, want required integer value", param)
	}
}

func TestModelFromSchemaWithoutProperties(t *testing.T) {
	for _, schema := range []map[string]any{nil, {}, {"type": "object"}} {
		model, err := ModelFromSchema(schema)
		if err != nil {
			t.Fatalf("ModelFromSchema(%v) error = %v", schema, err)
		}
		if !model.AllowExtra || len(model.Params) != 0 {
			t.Fatalf("ModelFromSchema(%v) = %+v, want empty model allowing extra", schema, model)
		}
	}
}

func TestParamModelJSONSchemaRoundTrip(t *testing.T) {
	model, err := ModelFromSchema(openLibraryDescriptor().InputSchema)
	if err != nil {
		t.Fatalf("ModelFromSchema() error = %v", err)
	}
	rendered := model.JSONSchema()
	if rendered["additionalProperties"] != false {
		t.Fatalf("additionalProperties = %v, want false", rendered["additionalProperties"])
	}

	again, err := ModelFromSchema(rendered)
	if err != nil {
		t.Fatalf("ModelFromSchema(rendered) error = %v", err)
	}
	if !reflect.DeepEqual(again.Names(), model.Names()) {
		t.Fatalf("Names() = %v, want %v", again.Names(), model.Names())
	}
	if !reflect.DeepEqual(again.RequiredNames(), model.RequiredNames()) {
		t.Fatalf("RequiredNames() = %v, want %v", again.RequiredNames(), model.RequiredNames())
	}
}
