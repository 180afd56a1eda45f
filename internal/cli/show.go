package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		showEvents bool
		output     string
	)

	cmd := &cobra.Command{
		Use:           "show <cassette-file>",
		Short:         "Show one cassette",
		Long:          "Print a cassette summary, or the full document as JSON or YAML.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], showEvents, output, cmd)
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "include the event timeline in the summary")
	cmd.Flags().StringVarP(&output, "output", "o", "summary", "output style (summary|json|yaml)")
	return cmd
}

func runShow(opts *RootOptions, path string, showEvents bool, output string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	c, err := cassette.Read(path)
	if err != nil {
		code := ErrCodeGeneric
		if cassette.IsNotFound(err) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading cassette", err)
	}

	switch output {
	case "json":
		return formatter.JSON(c.ToMap())
	case "yaml":
		data, err := yaml.Marshal(c.ToMap())
		if err != nil {
			return WrapExitError(ExitCommandError, "encoding yaml", err)
		}
		_, err = formatter.Writer.Write(data)
		return err
	case "summary":
		return printSummary(formatter, path, c, showEvents)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("invalid output %q: must be summary, json, or yaml", output))
}

func printSummary(formatter *OutputFormatter, path string, c *cassette.Cassette, showEvents bool) error {
	if formatter.Format == "json" {
		data := map[string]any{"summary": summarize(path, c)}
		if showEvents {
			data["events"] = eventSummaries(c)
		}
		return formatter.JSON(data)
	}

	w := formatter.Writer
	endpoint := c.Request.RouteTemplate
	if endpoint == "" {
		endpoint = c.Request.Path
	}
	fmt.Fprintf(w, "Session:   %s\n", c.Session.ID)
	fmt.Fprintf(w, "Recorded:  %s (%s/%s)\n", c.Session.RecordedAt, c.Session.Service, c.Session.Env)
	fmt.Fprintf(w, "Request:   %s %s\n", c.Request.Method, endpoint)
	fmt.Fprintf(w, "Response:  %d in %.1fms\n", c.Response.Status, c.Response.DurationMS)
	fmt.Fprintf(w, "Events:    %d (%.1fms total)\n", c.Stats.TotalEvents, c.Stats.TotalDurationMS)
	if c.ErrorInfo != nil {
		fmt.Fprintf(w, "Error:     %s: %s\n", c.ErrorInfo.Type, c.ErrorInfo.Message)
	}

	if showEvents {
		fmt.Fprintln(w)
		for _, e := range c.Events {
			target := e.Signature.URL
			if target == "" {
				target = e.Signature.Method
			}
			outcome := "ok"
			if e.Result.Error != "" {
				outcome = "error: " + e.Result.Error
			} else if e.Result.Status != nil {
				outcome = fmt.Sprintf("status %d", *e.Result.Status)
			}
			fmt.Fprintf(w, "  [%d] %-12s %s (%s, %.1fms)\n",
				e.EID, e.Type, target, outcome, e.DurationMS)
		}
	}
	return nil
}

type eventSummary struct {
	EID        int     `json:"eid"`
	Type       string  `json:"type"`
	Method     string  `json:"method,omitempty"`
	URL        string  `json:"url,omitempty"`
	Status     *int    `json:"status,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

func eventSummaries(c *cassette.Cassette) []eventSummary {
	out := make([]eventSummary, len(c.Events))
	for i, e := range c.Events {
		out[i] = eventSummary{
			EID:        e.EID,
			Type:       string(e.Type),
			Method:     e.Signature.Method,
			URL:        e.Signature.URL,
			Status:     e.Result.Status,
			Error:      e.Result.Error,
			DurationMS: e.DurationMS,
		}
	}
	return out
}
