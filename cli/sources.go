package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/manual"
	"github.com/petal-labs/toolbridge/store"
)

// NewSourcesCmd creates the "sources" command group.
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage manual sources",
	}
	cmd.AddCommand(newSourcesRegisterCmd())
	cmd.AddCommand(newSourcesListCmd())
	cmd.AddCommand(newSourcesUnregisterCmd())
	return cmd
}

func newSourcesRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a manual source in the local store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSourcesRegister,
	}
	cmd.Flags().String("type", "", "Source type: manual | openapi | mcp")
	cmd.Flags().String("path", "", "Manual or OpenAPI file")
	cmd.Flags().String("url", "", "Manual or OpenAPI URL")
	cmd.Flags().String("endpoint", "", "MCP HTTP endpoint")
	cmd.Flags().String("command", "", "MCP stdio command")
	cmd.Flags().StringArray("arg", nil, "MCP command argument (repeatable)")
	cmd.Flags().StringArray("env", nil, "MCP command environment KEY=VALUE (repeatable)")
	cmd.Flags().StringArray("header", nil, "Request header KEY=VALUE (repeatable)")
	cmd.Flags().String("base-url", "", "Base URL for OpenAPI operations (default: first server)")
	cmd.Flags().Bool("no-check", false, "Store the source without resolving it first")
	return cmd
}

func runSourcesRegister(cmd *cobra.Command, args []string) error {
	src, err := sourceFromFlags(cmd, strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	if err := src.Validate(); err != nil {
		return exitError(exitValidation, "%s", err)
	}

	tools := -1
	if noCheck, _ := cmd.Flags().GetBool("no-check"); !noCheck {
		caller := &manual.MCPCaller{}
		m, err := store.Resolver{MCP: caller}.Resolve(cmd.Context(), src)
		_ = caller.Close(cmd.Context())
		if err != nil {
			return exitError(exitValidation, "checking source %q: %s", src.Name, err)
		}
		tools = len(m.Tools)
	}

	st, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Upsert(cmd.Context(), src); err != nil {
		return exitError(exitRuntime, "storing source %q: %s", src.Name, err)
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return nil
	}
	if tools >= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s source %q (%d tools)\n", src.Type, src.Name, tools)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s source %q\n", src.Type, src.Name)
	return nil
}

func sourceFromFlags(cmd *cobra.Command, name string) (store.Source, error) {
	typ, _ := cmd.Flags().GetString("type")
	path, _ := cmd.Flags().GetString("path")
	url, _ := cmd.Flags().GetString("url")
	endpoint, _ := cmd.Flags().GetString("endpoint")
	command, _ := cmd.Flags().GetString("command")
	cmdArgs, _ := cmd.Flags().GetStringArray("arg")
	envPairs, _ := cmd.Flags().GetStringArray("env")
	headerPairs, _ := cmd.Flags().GetStringArray("header")
	baseURL, _ := cmd.Flags().GetString("base-url")

	env, err := parsePairs("--env", envPairs)
	if err != nil {
		return store.Source{}, err
	}
	headers, err := parsePairs("--header", headerPairs)
	if err != nil {
		return store.Source{}, err
	}

	return store.Source{
		Name:     name,
		Type:     store.SourceType(strings.ToLower(strings.TrimSpace(typ))),
		Path:     strings.TrimSpace(path),
		URL:      strings.TrimSpace(url),
		Endpoint: strings.TrimSpace(endpoint),
		Command:  strings.TrimSpace(command),
		Args:     cmdArgs,
		Env:      env,
		Headers:  headers,
		BaseURL:  strings.TrimSpace(baseURL),
	}, nil
}

func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, exitError(exitValidation, "%s %q must be KEY=VALUE", flag, pair)
		}
		out[key] = value
	}
	return out, nil
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured and registered sources",
		Args:  cobra.NoArgs,
		RunE:  runSourcesList,
	}
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	st, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	sources, err := allSources(cmd, st)
	if err != nil {
		return err
	}
	for i := range sources {
		sources[i].Source = store.Redact(sources[i].Source)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), sources)
	}

	out := cmd.OutOrStdout()
	if len(sources) == 0 {
		fmt.Fprintln(out, "No sources configured.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tORIGIN\tLOCATION\tHEADERS\tREGISTERED")
	for _, src := range sources {
		registered := "-"
		if !src.RegisteredAt.IsZero() {
			registered = src.RegisteredAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			src.Name,
			src.Type,
			src.Origin,
			src.Location(),
			dashIfEmpty(strings.Join(slices.Sorted(maps.Keys(src.Headers)), ",")),
			registered,
		)
	}
	return w.Flush()
}

func newSourcesUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <name>",
		Short: "Remove a source from the local store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSourcesUnregister,
	}
}

func runSourcesUnregister(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	st, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	_, found, err := st.Get(cmd.Context(), name)
	if err != nil {
		return exitError(exitRuntime, "reading source %q: %s", name, err)
	}
	if !found {
		return exitError(exitValidation, "source %q is not registered", name)
	}
	if err := st.Delete(cmd.Context(), name); err != nil {
		return exitError(exitRuntime, "removing source %q: %s", name, err)
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Unregistered source %q\n", name)
	}
	return nil
}
