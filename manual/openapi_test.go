package manual

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/petal-labs/toolbridge/tool"
)

const petstoreYAML = `
openapi: 3.0.3
info:
  title: Petstore
  version: 2.1.0
servers:
  - url: https://petstore.example.com/v1/
paths:
  /pets:
    get:
      operationId: listPets
      summary: List all pets
      tags: [pets]
      parameters:
        - name: limit
          in: query
          description: Page size
          schema: {type: integer, default: 20}
        - name: X-Trace
          in: header
          schema: {type: string}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items: {$ref: '#/components/schemas/Pet'}
    post:
      summary: Create a pet
      requestBody:
        required: true
        content:
          application/json:
            schema: {$ref: '#/components/schemas/Pet'}
      responses:
        "201": {description: created}
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        required: true
        schema: {type: string}
    get:
      operationId: show.pet
      description: Info for a specific pet
      responses:
        "200": {description: ok}
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name: {type: string}
        tag: {type: string, nullable: true}
`

func TestFromOpenAPI(t *testing.T) {
	m, err := FromOpenAPI("petstore", []byte(petstoreYAML), "")
	if err != nil {
		t.Fatalf("FromOpenAPI() error = %v", err)
	}
	if m.Version != "2.1.0" {
		t.Fatalf("Version = %q, want 2.1.0", m.Version)
	}

	var names []string
	for _, spec := range m.Tools {
		names = append(names, spec.Name)
	}
	want := []string{"listPets", "post_pets", "show_pet"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("tool names = %v, want %v", names, want)
	}

	list := m.Tools[0]
	if list.Description != "List all pets" || !reflect.DeepEqual(list.Tags, []string{"pets"}) {
		t.Fatalf("listPets = %+v", list)
	}
	if list.CallTemplate["url"] != "https://petstore.example.com/v1/pets" || list.CallTemplate["http_method"] != "GET" {
		t.Fatalf("listPets template = %v", list.CallTemplate)
	}
	if !reflect.DeepEqual(list.CallTemplate["header_fields"], []any{"X-Trace"}) {
		t.Fatalf("header_fields = %v", list.CallTemplate["header_fields"])
	}
	model, err := tool.ModelFromSchema(list.Inputs)
	if err != nil {
		t.Fatalf("ModelFromSchema(listPets) error = %v", err)
	}
	limit, ok := model.Lookup("limit")
	if !ok || limit.Required || limit.Field.Scalar != tool.TypeInteger || limit.Field.Description != "Page size" {
		t.Fatalf("limit param = %+v", limit)
	}
	if list.Outputs["type"] != "array" {
		t.Fatalf("listPets outputs = %v", list.Outputs)
	}

	create := m.Tools[1]
	if create.Description != "Create a pet" {
		t.Fatalf("post_pets description = %q", create.Description)
	}
	model, err = tool.ModelFromSchema(create.Inputs)
	if err != nil {
		t.Fatalf("ModelFromSchema(post_pets) error = %v", err)
	}
	body, ok := model.Lookup("body")
	if !ok || !body.Required || body.Field.Kind != tool.KindObject {
		t.Fatalf("body param = %+v", body)
	}

	show := m.Tools[2]
	model, err = tool.ModelFromSchema(show.Inputs)
	if err != nil {
		t.Fatalf("ModelFromSchema(show_pet) error = %v", err)
	}
	if got := model.RequiredNames(); !reflect.DeepEqual(got, []string{"petId"}) {
		t.Fatalf("show_pet required = %v", got)
	}
	if show.Description != "Info for a specific pet" {
		t.Fatalf("show_pet description = %q", show.Description)
	}
}

func TestFromOpenAPIRequiresServer(t *testing.T) {
	doc := `{"openapi":"3.0.0","info":{"title":"x","version":"1"},"paths":{}}`
	if _, err := FromOpenAPI("x", []byte(doc), ""); err == nil {
		t.Fatal("FromOpenAPI() error = nil, want missing server error")
	}
	m, err := FromOpenAPI("x", []byte(doc), "http://localhost:9000")
	if err != nil {
		t.Fatalf("FromOpenAPI() with base url error = %v", err)
	}
	if len(m.Tools) != 0 {
		t.Fatalf("len(Tools) = %d, want 0", len(m.Tools))
	}
	if _, err := FromOpenAPI("x", []byte("not: [valid"), ""); err == nil {
		t.Fatal("FromOpenAPI() error = nil, want parse error")
	}
}

func TestFromOpenAPIEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pets" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		var pet map[string]any
		_ = json.Unmarshal(data, &pet)
		pet["id"] = 11
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pet)
	}))
	defer srv.Close()

	m, err := FromOpenAPI("petstore", []byte(petstoreYAML), srv.URL)
	if err != nil {
		t.Fatalf("FromOpenAPI() error = %v", err)
	}
	client := NewClient(Config{HTTPClient: srv.Client(), Logger: quietLogger()})
	if err := client.Register(m); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	descs, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	var create *tool.Tool
	for _, desc := range descs {
		if desc.Name == "petstore.post_pets" {
			create, err = tool.Translate(client, desc)
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
		}
	}
	if create == nil {
		t.Fatal("petstore.post_pets not listed")
	}

	out, err := create.Invoke(context.Background(), map[string]any{"body": map[string]any{"name": "Rex"}})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := map[string]any{"name": "Rex", "id": int64(11)}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Invoke() = %#v, want %#v", out, want)
	}
}
