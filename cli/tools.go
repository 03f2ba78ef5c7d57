package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/discovery"
	"github.com/petal-labs/toolbridge/tool"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List, search, inspect and call discovered tools",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsSearchCmd())
	cmd.AddCommand(newToolsInspectCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every tool the registered sources expose",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
	cmd.Flags().String("manual", "", "Only list tools of this manual")
	return cmd
}

func runToolsList(cmd *cobra.Command, _ []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, sess.Close(cmd)) }()

	result, err := discovery.Load(cmd.Context(), sess.client, discoveryOptions(cmd)...)
	if err != nil {
		return exitError(exitRuntime, "loading tools: %s", err)
	}
	return printTools(cmd, result)
}

func newToolsSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search tools by name, description and tags",
		Args:  cobra.ArbitraryArgs,
		RunE:  runToolsSearch,
	}
	cmd.Flags().String("manual", "", "Only search tools of this manual")
	cmd.Flags().Int("max-results", discovery.DefaultMaxResults, "Maximum number of results")
	return cmd
}

func runToolsSearch(cmd *cobra.Command, args []string) (err error) {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	query := strings.Join(args, " ")

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, sess.Close(cmd)) }()

	opts := append(discoveryOptions(cmd), discovery.WithMaxResults(maxResults))
	result, err := discovery.Search(cmd.Context(), sess.client, query, opts...)
	if err != nil {
		return exitError(exitRuntime, "searching tools: %s", err)
	}
	return printTools(cmd, result)
}

func newToolsInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show a tool's metadata and input schema",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsInspect,
	}
}

type toolDetail struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Metadata     tool.Metadata   `json:"metadata"`
	InputSchema  json.RawMessage `json:"input_schema"`
	Required     []string        `json:"required"`
	AllowExtra   bool            `json:"allow_extra,omitempty"`
	OutputSchema map[string]any  `json:"output_schema,omitempty"`
}

func runToolsInspect(cmd *cobra.Command, args []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, sess.Close(cmd)) }()

	t, err := lookupTool(cmd, sess, args[0])
	if err != nil {
		return err
	}

	detail := toolDetail{
		Name:        t.Name(),
		Description: t.Description(),
		Metadata:    t.Metadata(),
		InputSchema: t.Schema().JSONSchema,
		Required:    t.Params().RequiredNames(),
		AllowExtra:  t.Params().AllowExtra,
	}
	if output, ok := t.Output(); ok {
		detail.OutputSchema = output.JSONSchema()
	}
	if detail.Required == nil {
		detail.Required = []string{}
	}
	return writeJSON(cmd.OutOrStdout(), detail)
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Call a tool with validated arguments",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().String("args", "", "Arguments as a JSON object")
	cmd.Flags().StringArray("arg", nil, "Argument KEY=VALUE; VALUE is parsed as JSON when possible (repeatable)")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) (err error) {
	callArgs, err := parseCallArgs(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, sess.Close(cmd)) }()

	t, err := lookupTool(cmd, sess, args[0])
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		value, err := t.Invoke(cmd.Context(), callArgs)
		if err != nil {
			return toolExitError(t.Name(), err)
		}
		return writeJSON(cmd.OutOrStdout(), value)
	}

	text, err := t.InvokeText(cmd.Context(), callArgs)
	if err != nil {
		return toolExitError(t.Name(), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func parseCallArgs(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString("args")
	pairs, _ := cmd.Flags().GetStringArray("arg")

	out := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, exitError(exitValidation, "--args must be a JSON object: %s", err)
		}
		if out == nil {
			out = map[string]any{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, exitError(exitValidation, "--arg %q must be KEY=VALUE", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
			continue
		}
		out[key] = value
	}
	return out, nil
}

func lookupTool(cmd *cobra.Command, sess *session, name string) (*tool.Tool, error) {
	result, err := discovery.Load(cmd.Context(), sess.client)
	if err != nil {
		return nil, exitError(exitRuntime, "loading tools: %s", err)
	}
	t, ok := result.Tools.Lookup(name)
	if !ok {
		for _, skipped := range result.Skipped {
			if skipped.Name == name {
				return nil, toolExitError(name, skipped.Err)
			}
		}
		return nil, exitError(exitValidation, "tool %q not found", name)
	}
	return t, nil
}

func discoveryOptions(cmd *cobra.Command) []discovery.Option {
	opts := []discovery.Option{discovery.WithLogger(slog.Default())}
	if name, _ := cmd.Flags().GetString("manual"); strings.TrimSpace(name) != "" {
		opts = append(opts, discovery.WithCallTemplate(name))
	}
	return opts
}

type toolSummary struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Metadata    tool.Metadata `json:"metadata"`
}

type skippedSummary struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func printTools(cmd *cobra.Command, result *discovery.LoadResult) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		payload := struct {
			Tools   []toolSummary    `json:"tools"`
			Skipped []skippedSummary `json:"skipped,omitempty"`
		}{Tools: make([]toolSummary, 0, len(result.Tools))}
		for _, t := range result.Tools {
			payload.Tools = append(payload.Tools, toolSummary{
				Name:        t.Name(),
				Description: t.Description(),
				Metadata:    t.Metadata(),
			})
		}
		for _, s := range result.Skipped {
			payload.Skipped = append(payload.Skipped, skippedSummary{Name: s.Name, Error: s.Err.Error()})
		}
		return writeJSON(cmd.OutOrStdout(), payload)
	}

	out := cmd.OutOrStdout()
	if len(result.Tools) == 0 {
		fmt.Fprintln(out, "No tools found.")
	} else {
		w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tREQUIRED\tDESCRIPTION")
		for _, t := range result.Tools {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				t.Name(),
				t.Metadata().CallTemplateType,
				dashIfEmpty(strings.Join(t.Params().RequiredNames(), ",")),
				firstLine(t.Description()),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		for _, s := range result.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", s.Name, s.Err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitError(exitRuntime, "encoding output: %s", err)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// joinClose keeps the command's error and reports a close failure only when
// the command itself succeeded.
func joinClose(err, closeErr error) error {
	if err != nil || closeErr == nil {
		return err
	}
	return exitError(exitRuntime, "closing: %s", closeErr)
}
