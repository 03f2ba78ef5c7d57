package cli

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestToolsList(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "list", "--config", fx.config)
	if err != nil {
		t.Fatalf("tools list error = %v", err)
	}
	for _, want := range []string{"NAME", "weather.current", "weather.alerts", "city", "Active weather alerts"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if fx.hits.Load() != 0 {
		t.Fatalf("listing called the API %d times", fx.hits.Load())
	}
}

func TestToolsListJSONWithManualFilter(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "list", "--config", fx.config, "--json", "--manual", "other")
	if err != nil {
		t.Fatalf("tools list error = %v", err)
	}
	var payload struct {
		Tools []toolSummary `json:"tools"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if len(payload.Tools) != 0 {
		t.Fatalf("tools = %+v, want none for unknown manual", payload.Tools)
	}
}

func TestToolsSearch(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "search", "alerts", "--config", fx.config, "--json")
	if err != nil {
		t.Fatalf("tools search error = %v", err)
	}
	var payload struct {
		Tools []toolSummary `json:"tools"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if len(payload.Tools) != 1 || payload.Tools[0].Name != "weather.alerts" {
		t.Fatalf("tools = %+v, want [weather.alerts]", payload.Tools)
	}
	if payload.Tools[0].Metadata.ManualName != "weather" || payload.Tools[0].Metadata.CallTemplateType != "http" {
		t.Fatalf("metadata = %+v", payload.Tools[0].Metadata)
	}
}

func TestToolsSearchZeroResults(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "search", "weather", "--config", fx.config, "--max-results", "0")
	if err != nil {
		t.Fatalf("tools search error = %v", err)
	}
	if !strings.Contains(stdout, "No tools found.") {
		t.Fatalf("stdout = %q, want no tools", stdout)
	}
}

func TestToolsInspect(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "inspect", "weather.current", "--config", fx.config)
	if err != nil {
		t.Fatalf("tools inspect error = %v", err)
	}
	var detail struct {
		Name        string         `json:"name"`
		Required    []string       `json:"required"`
		InputSchema map[string]any `json:"input_schema"`
		Metadata    struct {
			UTCPTool bool `json:"utcp_tool"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(stdout), &detail); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if detail.Name != "weather.current" || len(detail.Required) != 1 || detail.Required[0] != "city" {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.InputSchema["type"] != "object" || !detail.Metadata.UTCPTool {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestToolsInspectUnknown(t *testing.T) {
	fx := newWeatherFixture(t)

	_, _, err := executeCommand(newTestRoot(), "tools", "inspect", "weather.nope", "--config", fx.config)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if code := exitCode(t, err); code != exitValidation {
		t.Fatalf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestToolsCall(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "call", "weather.current", "--config", fx.config, "--arg", "city=paris")
	if err != nil {
		t.Fatalf("tools call error = %v", err)
	}
	if !strings.Contains(stdout, `"temp": 21`) || !strings.Contains(stdout, `"city": "paris"`) {
		t.Fatalf("stdout = %q, want rendered result", stdout)
	}
	if fx.hits.Load() != 1 {
		t.Fatalf("API hits = %d, want 1", fx.hits.Load())
	}
}

func TestToolsCallJSONArgs(t *testing.T) {
	fx := newWeatherFixture(t)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "call", "weather.current", "--config", fx.config, "--json", "--args", `{"city":"oslo"}`)
	if err != nil {
		t.Fatalf("tools call error = %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if result["city"] != "oslo" {
		t.Fatalf("result = %v", result)
	}
}

func TestToolsCallInvalidArgumentsSkipsClient(t *testing.T) {
	fx := newWeatherFixture(t)

	_, _, err := executeCommand(newTestRoot(), "tools", "call", "weather.current", "--config", fx.config, "--arg", "town=paris")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := exitCode(t, err); code != exitValidation {
		t.Fatalf("exit code = %d, want %d", code, exitValidation)
	}
	if fx.hits.Load() != 0 {
		t.Fatalf("API hits = %d, want 0", fx.hits.Load())
	}
}

func TestToolsCallBadArgFlags(t *testing.T) {
	isolateEnv(t)
	for _, args := range [][]string{
		{"tools", "call", "x.y", "--args", "[1,2]"},
		{"tools", "call", "x.y", "--arg", "novalue"},
	} {
		_, _, err := executeCommand(newTestRoot(), args...)
		if err == nil {
			t.Fatalf("%v: expected error", args)
		}
		if code := exitCode(t, err); code != exitValidation {
			t.Fatalf("%v: exit code = %d, want %d", args, code, exitValidation)
		}
	}
}

func TestToolsCallVerbosePrintsMetrics(t *testing.T) {
	fx := newWeatherFixture(t)

	_, stderr, err := executeCommand(newTestRoot(), "tools", "call", "weather.current", "--config", fx.config, "--arg", "city=rome", "--verbose")
	if err != nil {
		t.Fatalf("tools call error = %v", err)
	}
	if !strings.Contains(stderr, "metrics:") || !strings.Contains(stderr, "toolbridge.tool.invocations: 1") {
		t.Fatalf("stderr = %q, want metrics summary", stderr)
	}
}

func TestParseCallArgs(t *testing.T) {
	cmd := newToolsCallCmd()
	if err := cmd.ParseFlags([]string{"--args", `{"a":1}`, "--arg", "b=true", "--arg", "c=plain text", "--arg", "a=2"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	got, err := parseCallArgs(cmd)
	if err != nil {
		t.Fatalf("parseCallArgs() error = %v", err)
	}
	if got["a"] != float64(2) || got["b"] != true || got["c"] != "plain text" {
		t.Fatalf("parseCallArgs() = %v", got)
	}
}
