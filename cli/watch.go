package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/discovery"
	"github.com/petal-labs/toolbridge/manual"
	"github.com/petal-labs/toolbridge/store"
)

const defaultWatchSchedule = "*/5 * * * *"

var watchCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

func parseWatchSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := watchCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NewWatchCmd creates the "watch" command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run discovery on a schedule and report added and removed tools",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("schedule", defaultWatchSchedule, "Cron schedule (UTC, 5 fields or @every <duration>)")
	cmd.Flags().Int("runs", 0, "Stop after this many discovery runs (0 = until interrupted)")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) (err error) {
	expr, _ := cmd.Flags().GetString("schedule")
	runs, _ := cmd.Flags().GetInt("runs")
	schedule, err := parseWatchSchedule(expr)
	if err != nil {
		return exitError(exitValidation, "--schedule: %s", err)
	}
	if runs < 0 {
		return exitError(exitValidation, "--runs must be >= 0")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, sess.Close(cmd)) }()

	w := &watcher{
		client:   sess.client,
		resolver: store.Resolver{MCP: sess.client.MCP()},
		sources: func(context.Context) ([]store.Source, error) {
			sources, err := allSources(cmd, sess.store)
			return plainSources(sources), err
		},
		logger: sess.logger,
		out:    cmd.OutOrStdout(),
	}

	done := make(chan struct{})
	var once sync.Once
	var completed int
	tick := func() {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := w.refresh(ctx); err != nil {
			w.logger.Error("watch: discovery failed", "error", err)
		}
		completed++
		if runs > 0 && completed >= runs {
			once.Do(func() { close(done) })
		}
	}

	// Jobs run one at a time, so tick needs no extra locking.
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(schedule, cron.FuncJob(tick))

	tick()
	c.Start()
	select {
	case <-ctx.Done():
	case <-done:
	}
	<-c.Stop().Done()
	return nil
}

// watcher keeps a client in sync with the configured sources and reports
// tool-set changes between discovery runs.
type watcher struct {
	client   *manual.Client
	resolver store.Resolver
	sources  func(ctx context.Context) ([]store.Source, error)
	logger   *slog.Logger
	out      io.Writer

	mu     sync.Mutex
	primed bool
	known  []string
}

// refresh re-resolves every source, drops manuals whose source is gone, and
// re-runs discovery. The first run reports every tool as added.
func (w *watcher) refresh(ctx context.Context) (added, removed []string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sources, err := w.sources(ctx)
	if err != nil {
		return nil, nil, err
	}
	wanted := make(map[string]bool, len(sources))
	for _, src := range sources {
		wanted[src.Name] = true
	}
	for _, name := range w.client.Manuals() {
		if !wanted[name] {
			w.client.Deregister(name)
			w.logger.Info("watch: source removed", "source", name)
		}
	}
	w.resolver.RegisterAll(ctx, w.client, sources, w.logger)

	result, err := discovery.Load(ctx, w.client, discovery.WithLogger(w.logger))
	if err != nil {
		return nil, nil, err
	}
	current := result.Tools.Names()
	slices.Sort(current)

	added, removed = diffSorted(w.known, current)
	w.known = current

	if !w.primed {
		w.primed = true
		fmt.Fprintf(w.out, "%s watching %d tools\n", timestamp(), len(current))
	}
	for _, name := range added {
		fmt.Fprintf(w.out, "%s + %s\n", timestamp(), name)
	}
	for _, name := range removed {
		fmt.Fprintf(w.out, "%s - %s\n", timestamp(), name)
	}
	if len(added) > 0 || len(removed) > 0 {
		w.logger.Info("watch: tools changed", "added", len(added), "removed", len(removed), "total", len(current))
	}
	return added, removed, nil
}

func diffSorted(before, after []string) (added, removed []string) {
	i, j := 0, 0
	for i < len(before) && j < len(after) {
		switch {
		case before[i] == after[j]:
			i++
			j++
		case before[i] < after[j]:
			removed = append(removed, before[i])
			i++
		default:
			added = append(added, after[j])
			j++
		}
	}
	removed = append(removed, before[i:]...)
	added = append(added, after[j:]...)
	return added, removed
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
