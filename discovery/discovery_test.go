package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/petal-labs/toolbridge/tool"
)

type fakeClient struct {
	mu          sync.Mutex
	descriptors []tool.Descriptor
	listErr     error
	listCalls   int
	results     map[string]any
	calls       []string
}

func (c *fakeClient) ListTools(context.Context) ([]tool.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]tool.Descriptor(nil), c.descriptors...), nil
}

func (c *fakeClient) CallTool(_ context.Context, name string, _ map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	result, ok := c.results[name]
	if !ok {
		return nil, fmt.Errorf("no result for %s", name)
	}
	return result, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func catalog() []tool.Descriptor {
	return []tool.Descriptor{
		{
			Name:        "openlibrary.search",
			Description: "Search books by title or author",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
				"required":   []any{"q"},
			},
			CallTemplate: &tool.CallTemplate{Name: "openlibrary", Type: tool.CallTemplateHTTP},
		},
		{
			Name:         "weather.get_forecast",
			Description:  "Daily forecast for a city",
			CallTemplate: &tool.CallTemplate{Name: "weather", Type: tool.CallTemplateHTTP},
		},
		{
			Name:         "library.book_checkout",
			Description:  "Check out an item",
			CallTemplate: &tool.CallTemplate{Name: "library", Type: tool.CallTemplateMCP},
		},
		{
			Name:         "notes.create",
			Description:  "Create a note about a book you read",
			CallTemplate: &tool.CallTemplate{Name: "notes", Type: tool.CallTemplateText},
		},
		{
			Name:         "weather",
			Description:  "Current conditions",
			CallTemplate: &tool.CallTemplate{Name: "weather", Type: tool.CallTemplateHTTP},
		},
	}
}

func TestLoadTranslatesEveryDescriptorInOrder(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	result, err := Load(context.Background(), client, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(result.Tools) != len(client.descriptors) {
		t.Fatalf("len(Tools) = %d, want %d", len(result.Tools), len(client.descriptors))
	}
	want := []string{"openlibrary.search", "weather.get_forecast", "library.book_checkout", "notes.create", "weather"}
	if got := result.Tools.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("Skipped = %v, want none", result.Skipped)
	}
}

func TestLoadSkipsAndReportsMalformed(t *testing.T) {
	descriptors := append(catalog(), tool.Descriptor{
		Name:        "broken.tool",
		InputSchema: map[string]any{"properties": []any{"q"}},
	})
	client := &fakeClient{descriptors: descriptors}

	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	result, err := Load(context.Background(), client, WithLogger(logger))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(result.Tools) != len(descriptors)-1 {
		t.Fatalf("len(Tools) = %d, want %d", len(result.Tools), len(descriptors)-1)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Name != "broken.tool" {
		t.Fatalf("Skipped = %+v, want broken.tool", result.Skipped)
	}
	if !errors.Is(result.Skipped[0].Err, tool.ErrMalformedDescriptor) {
		t.Fatalf("Skipped[0].Err = %v, want ErrMalformedDescriptor", result.Skipped[0].Err)
	}
	if !strings.Contains(logs.String(), "broken.tool") {
		t.Fatalf("log output = %q, want skipped tool name", logs.String())
	}
}

func TestLoadListFailure(t *testing.T) {
	cause := errors.New("registry unavailable")
	_, err := Load(context.Background(), &fakeClient{listErr: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("Load() error = %v, want cause", err)
	}
	if _, err := Load(context.Background(), nil); !errors.Is(err, ErrNilClient) {
		t.Fatalf("Load(nil) error = %v, want ErrNilClient", err)
	}
}

func TestLoadWithCallTemplate(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	result, err := Load(context.Background(), client, WithCallTemplate("weather"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"weather.get_forecast", "weather"}
	if got := result.Tools.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestLoadSeesRegistryChanges(t *testing.T) {
	client := &fakeClient{descriptors: catalog()[:1]}
	first, _ := Load(context.Background(), client)

	client.mu.Lock()
	client.descriptors = catalog()
	client.mu.Unlock()

	second, _ := Load(context.Background(), client)
	if len(first.Tools) != 1 || len(second.Tools) != len(catalog()) {
		t.Fatalf("Load() sizes = %d then %d, want 1 then %d", len(first.Tools), len(second.Tools), len(catalog()))
	}
	if client.listCalls != 2 {
		t.Fatalf("ListTools calls = %d, want 2", client.listCalls)
	}
}

func TestLoadIsSafeForConcurrentUse(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := Search(context.Background(), client, "book")
			if err != nil {
				errs <- err
				return
			}
			if len(result.Tools) == 0 {
				errs <- errors.New("empty search result")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Search() error = %v", err)
	}
}
