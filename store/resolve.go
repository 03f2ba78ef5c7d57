package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/petal-labs/toolbridge/manual"
)

const maxDocumentBytes = 16 << 20

// Resolver turns sources into manuals.
type Resolver struct {
	HTTPClient *http.Client
	// MCP discovers mcp sources; sessions stay open for later calls.
	MCP *manual.MCPCaller
}

// Resolve reads, fetches, or discovers the manual a source points at. The
// manual is named after the source.
func (r Resolver) Resolve(ctx context.Context, src Source) (manual.Manual, error) {
	if err := src.Validate(); err != nil {
		return manual.Manual{}, err
	}

	switch src.Type {
	case SourceManual:
		data, err := r.document(ctx, src)
		if err != nil {
			return manual.Manual{}, err
		}
		m, err := manual.Parse(data)
		if err != nil {
			return manual.Manual{}, fmt.Errorf("store: source %q: %w", src.Name, err)
		}
		m.Name = src.Name
		return m, nil

	case SourceOpenAPI:
		data, err := r.document(ctx, src)
		if err != nil {
			return manual.Manual{}, err
		}
		m, err := manual.FromOpenAPI(src.Name, data, src.BaseURL)
		if err != nil {
			return manual.Manual{}, fmt.Errorf("store: source %q: %w", src.Name, err)
		}
		if len(src.Headers) > 0 {
			for i := range m.Tools {
				m.Tools[i].CallTemplate["headers"] = headerFields(src.Headers)
			}
		}
		return m, nil

	case SourceMCP:
		caller := r.MCP
		if caller == nil {
			caller = &manual.MCPCaller{HTTPClient: r.HTTPClient}
		}
		fields := map[string]any{}
		if src.Endpoint != "" {
			fields["url"] = src.Endpoint
			if len(src.Headers) > 0 {
				fields["headers"] = headerFields(src.Headers)
			}
		} else {
			args := make([]any, len(src.Args))
			for i, arg := range src.Args {
				args[i] = arg
			}
			fields["command"] = src.Command
			fields["args"] = args
			if len(src.Env) > 0 {
				fields["env"] = headerFields(src.Env)
			}
		}
		m, err := caller.Discover(ctx, src.Name, fields)
		if err != nil {
			return manual.Manual{}, fmt.Errorf("store: source %q: %w", src.Name, err)
		}
		return m, nil
	}
	return manual.Manual{}, fmt.Errorf("store: source %q has unsupported type %q", src.Name, src.Type)
}

// SourceError reports a source that could not be loaded.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e SourceError) Unwrap() error { return e.Err }

// RegisterAll resolves every source and registers the results with client.
// Sources that fail are logged and returned; the rest still register.
func (r Resolver) RegisterAll(ctx context.Context, client *manual.Client, sources []Source, logger *slog.Logger) []SourceError {
	if logger == nil {
		logger = slog.Default()
	}
	var failed []SourceError
	for _, src := range sources {
		started := time.Now()
		m, err := r.Resolve(ctx, src)
		if err == nil {
			err = client.Register(m)
		}
		if err != nil {
			logger.Warn("store: skipping source", "source", src.Name, "type", src.Type, "error", err)
			failed = append(failed, SourceError{Source: src.Name, Err: err})
			continue
		}
		logger.Debug("store: registered source",
			"source", src.Name,
			"type", src.Type,
			"tools", len(m.Tools),
			"duration", time.Since(started),
		)
	}
	return failed
}

func (r Resolver) document(ctx context.Context, src Source) ([]byte, error) {
	if src.Path != "" {
		// #nosec G304 -- path comes from operator configuration.
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("store: source %q: %w", src.Name, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("store: source %q: %w", src.Name, err)
	}
	for key, value := range src.Headers {
		req.Header.Set(key, os.ExpandEnv(value))
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: source %q: fetch %s: %w", src.Name, src.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("store: source %q: fetch %s: status %d", src.Name, src.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("store: source %q: read %s: %w", src.Name, src.URL, err)
	}
	return data, nil
}

func headerFields(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
