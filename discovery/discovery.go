// Package discovery enumerates a client's tools as translated tools and
// answers keyword searches over them.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/petal-labs/toolbridge/tool"
)

// DefaultMaxResults bounds Search when no limit is given.
const DefaultMaxResults = 10

const (
	operationLoad   = "load"
	operationSearch = "search"
)

// ErrNilClient is returned when Load or Search is given no client.
var ErrNilClient = errors.New("discovery: client is nil")

// Option configures Load and Search.
type Option func(*options)

type options struct {
	maxResults   int
	callTemplate string
	logger       *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{maxResults: DefaultMaxResults}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithMaxResults sets the Search result limit. Values <= 0 yield no results.
func WithMaxResults(n int) Option {
	return func(o *options) { o.maxResults = n }
}

// WithCallTemplate restricts discovery to tools of the named manual.
func WithCallTemplate(name string) Option {
	return func(o *options) { o.callTemplate = strings.TrimSpace(name) }
}

// WithLogger sets the logger used to report skipped descriptors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// SkippedTool reports a descriptor that could not be translated.
type SkippedTool struct {
	Name string
	Err  error
}

// LoadResult is the outcome of Load or Search.
type LoadResult struct {
	Tools   Toolset
	Skipped []SkippedTool
}

// Load enumerates every tool the client currently exposes, in client order.
// Malformed descriptors are skipped and reported; the rest are returned.
func Load(ctx context.Context, client tool.Client, opts ...Option) (*LoadResult, error) {
	o := newOptions(opts)
	started := time.Now()
	result, listed, err := load(ctx, client, o)
	observation := tool.DiscoveryObservation{
		Operation: operationLoad,
		Listed:    listed,
		Duration:  time.Since(started),
	}
	if err != nil {
		observation.ErrorCode = "LIST_FAILED"
		tool.ReportDiscovery(observation)
		return nil, err
	}
	observation.Translated = len(result.Tools)
	observation.Skipped = len(result.Skipped)
	observation.Returned = len(result.Tools)
	tool.ReportDiscovery(observation)
	return result, nil
}

func load(ctx context.Context, client tool.Client, o options) (*LoadResult, int, error) {
	if client == nil {
		return nil, 0, ErrNilClient
	}
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("discovery: list tools: %w", err)
	}

	result := &LoadResult{Tools: make(Toolset, 0, len(descriptors))}
	for _, desc := range descriptors {
		if o.callTemplate != "" && desc.ManualName() != o.callTemplate {
			continue
		}
		translated, err := tool.Translate(client, desc)
		if err != nil {
			o.logger.Warn("discovery: skipping tool",
				"tool", desc.Name,
				"error", err,
			)
			result.Skipped = append(result.Skipped, SkippedTool{Name: desc.Name, Err: err})
			continue
		}
		result.Tools = append(result.Tools, translated)
	}
	return result, len(descriptors), nil
}

// Search loads the client's tools and keeps those matching query, ranked
// exact name first, then name substring, then description substring, then
// token matches. Ties keep load order. An empty query matches everything.
func Search(ctx context.Context, client tool.Client, query string, opts ...Option) (*LoadResult, error) {
	o := newOptions(opts)
	started := time.Now()
	observation := tool.DiscoveryObservation{
		Operation: operationSearch,
		Query:     query,
	}

	if o.maxResults <= 0 {
		observation.Duration = time.Since(started)
		tool.ReportDiscovery(observation)
		return &LoadResult{Tools: Toolset{}}, nil
	}

	loaded, listed, err := load(ctx, client, o)
	observation.Listed = listed
	if err != nil {
		observation.Duration = time.Since(started)
		observation.ErrorCode = "LIST_FAILED"
		tool.ReportDiscovery(observation)
		return nil, err
	}

	matched := rank(loaded.Tools, query)
	if len(matched) > o.maxResults {
		matched = matched[:o.maxResults]
	}

	observation.Translated = len(loaded.Tools)
	observation.Skipped = len(loaded.Skipped)
	observation.Returned = len(matched)
	observation.Duration = time.Since(started)
	tool.ReportDiscovery(observation)

	return &LoadResult{Tools: matched, Skipped: loaded.Skipped}, nil
}
