package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/manual"
	"github.com/petal-labs/toolbridge/otel"
	"github.com/petal-labs/toolbridge/store"
)

const storePathEnv = "TOOLBRIDGE_STORE_PATH"

// Source origins shown by "sources list".
const (
	originConfig = "config"
	originStore  = "store"
)

// session is the per-command runtime: the registration store, a client
// holding every resolved source, and process telemetry.
type session struct {
	store     *store.SQLiteStore
	client    *manual.Client
	telemetry *otel.Telemetry
	logger    *slog.Logger
	verbose   bool
}

func resolveStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	storePath, _ := cmd.Flags().GetString("store-path")
	if strings.TrimSpace(storePath) == "" {
		storePath = os.Getenv(storePathEnv)
	}
	if strings.TrimSpace(storePath) == "" {
		path, err := store.DefaultSQLitePath()
		if err != nil {
			return nil, exitError(exitRuntime, "resolving store path: %s", err)
		}
		storePath = path
	}

	dsn := strings.TrimSpace(storePath)
	scope := dsn
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = filepath.Clean(dsn)
		scope = dsn
	}
	st, err := store.NewSQLiteStore(store.SQLiteConfig{DSN: dsn, Scope: scope})
	if err != nil {
		return nil, exitError(exitRuntime, "opening store: %s", err)
	}
	return st, nil
}

// configSources loads the sources declared in the discovered config file.
func configSources(cmd *cobra.Command) ([]store.Source, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, found, err := store.DiscoverConfigPath(explicit)
	if err != nil {
		return nil, exitError(exitValidation, "%s", err)
	}
	if !found {
		return nil, nil
	}
	sources, err := store.LoadConfigFile(path)
	if err != nil {
		return nil, exitError(exitValidation, "%s", err)
	}
	slog.Default().Debug("cli: loaded config", "path", path, "sources", len(sources))
	return sources, nil
}

type originSource struct {
	store.Source
	Origin string `json:"origin"`
}

// allSources merges config declarations with stored registrations, ordered
// by name. A stored registration replaces a declaration of the same name.
func allSources(cmd *cobra.Command, st store.Store) ([]originSource, error) {
	declared, err := configSources(cmd)
	if err != nil {
		return nil, err
	}
	stored, err := st.List(cmd.Context())
	if err != nil {
		return nil, exitError(exitRuntime, "listing sources: %s", err)
	}

	byName := make(map[string]originSource, len(declared)+len(stored))
	for _, src := range declared {
		byName[src.Name] = originSource{Source: src, Origin: originConfig}
	}
	for _, src := range stored {
		if _, ok := byName[src.Name]; ok {
			slog.Default().Debug("cli: stored source overrides config", "source", src.Name)
		}
		byName[src.Name] = originSource{Source: src, Origin: originStore}
	}

	out := make([]originSource, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		out = append(out, byName[name])
	}
	return out, nil
}

func plainSources(sources []originSource) []store.Source {
	out := make([]store.Source, len(sources))
	for i, src := range sources {
		out[i] = src.Source
	}
	return out
}

// openSession opens the store, starts telemetry, and registers every source
// with a fresh client. Sources that fail to resolve are logged and skipped.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	logger := slog.Default()
	verbose, _ := cmd.Flags().GetBool("verbose")
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	st, err := resolveStore(cmd)
	if err != nil {
		return nil, err
	}
	sources, err := allSources(cmd, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	telemetry, err := otel.Setup(ctx, otel.Config{OTLPEndpoint: endpoint, Logger: logger})
	if err != nil {
		_ = st.Close()
		return nil, exitError(exitRuntime, "%s", err)
	}

	client := manual.NewClient(manual.Config{Logger: logger})
	resolver := store.Resolver{MCP: client.MCP()}
	resolver.RegisterAll(ctx, client, plainSources(sources), logger)

	return &session{
		store:     st,
		client:    client,
		telemetry: telemetry,
		logger:    logger,
		verbose:   verbose,
	}, nil
}

// Close releases transports, flushes telemetry and closes the store. With
// --verbose the collected metrics are printed to stderr first.
func (s *session) Close(cmd *cobra.Command) error {
	ctx := context.WithoutCancel(cmd.Context())
	if s.verbose {
		if summary, err := s.telemetry.Summary(ctx); err == nil && len(summary) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "metrics:")
			for _, name := range slices.Sorted(maps.Keys(summary)) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %d\n", name, summary[name])
			}
		}
	}
	return errors.Join(
		s.client.Close(ctx),
		s.telemetry.Shutdown(ctx),
		s.store.Close(),
	)
}
