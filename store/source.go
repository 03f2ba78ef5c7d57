// Package store persists manual source registrations and resolves them into
// manuals.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// SourceType names how a source's manual is obtained.
type SourceType string

const (
	// SourceManual is a JSON or YAML manual file or URL.
	SourceManual SourceType = "manual"
	// SourceOpenAPI is an OpenAPI 3 document file or URL.
	SourceOpenAPI SourceType = "openapi"
	// SourceMCP is an MCP server reached over HTTP (Endpoint) or stdio (Command).
	SourceMCP SourceType = "mcp"
)

// Source is one registered manual source.
type Source struct {
	Name         string            `json:"name" yaml:"-"`
	Type         SourceType        `json:"type" yaml:"type"`
	Path         string            `json:"path,omitempty" yaml:"path,omitempty"`
	URL          string            `json:"url,omitempty" yaml:"url,omitempty"`
	Endpoint     string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Command      string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args         []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	BaseURL      string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	RegisteredAt time.Time         `json:"registered_at,omitzero" yaml:"-"`
}

// Store persists sources by name.
type Store interface {
	List(ctx context.Context) ([]Source, error)
	Get(ctx context.Context, name string) (Source, bool, error)
	Upsert(ctx context.Context, src Source) error
	Delete(ctx context.Context, name string) error
}

// Validate checks that the source names a supported type and the location
// that type needs.
func (s Source) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return errors.New("store: source name is required")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("store: source name %q must not contain '.'", name)
	}
	switch s.Type {
	case SourceManual, SourceOpenAPI:
		if s.Path == "" && s.URL == "" {
			return fmt.Errorf("store: %s source %q needs a path or url", s.Type, name)
		}
	case SourceMCP:
		if s.Endpoint == "" && s.Command == "" {
			return fmt.Errorf("store: mcp source %q needs an endpoint or command", name)
		}
	case "":
		return fmt.Errorf("store: source %q has no type", name)
	default:
		return fmt.Errorf("store: source %q has unsupported type %q", name, s.Type)
	}
	return nil
}

// Location is the path, URL, endpoint, or command line the source reads from.
func (s Source) Location() string {
	switch {
	case s.Path != "":
		return s.Path
	case s.URL != "":
		return s.URL
	case s.Endpoint != "":
		return s.Endpoint
	default:
		return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
	}
}

func cloneSource(src Source) Source {
	out := src
	out.Args = slices.Clone(src.Args)
	out.Env = maps.Clone(src.Env)
	out.Headers = maps.Clone(src.Headers)
	return out
}
