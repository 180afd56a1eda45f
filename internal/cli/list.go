package cli

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// ListEntry is one cassette summary row.
type ListEntry struct {
	Path        string  `json:"path"`
	SessionID   string  `json:"session_id"`
	RecordedAt  string  `json:"recorded_at"`
	Service     string  `json:"service"`
	Method      string  `json:"method"`
	Endpoint    string  `json:"endpoint"`
	Status      int     `json:"status"`
	DurationMS  float64 `json:"duration_ms"`
	TotalEvents int     `json:"total_events"`
	HasError    bool    `json:"has_error"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List cassettes in a directory",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./cassettes", "cassette directory")
	return cmd
}

func runList(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	paths, err := collectCassettePaths(dir)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "listing cassettes", err)
	}

	var entries []ListEntry
	for _, path := range paths {
		c, err := cassette.Read(path)
		if err != nil {
			formatter.VerboseLog("skipping %s: %v", path, err)
			continue
		}
		entries = append(entries, summarize(path, c))
	}

	if opts.Format == "json" {
		return formatter.JSON(map[string]any{"cassettes": entries, "count": len(entries)})
	}

	if len(entries) == 0 {
		fmt.Fprintf(formatter.Writer, "no cassettes in %s\n", dir)
		return nil
	}
	w := tabwriter.NewWriter(formatter.Writer, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tMETHOD\tENDPOINT\tSTATUS\tEVENTS\tPATH")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.RecordedAt, e.Method, e.Endpoint, e.Status, e.TotalEvents, e.Path)
	}
	return w.Flush()
}

func summarize(path string, c *cassette.Cassette) ListEntry {
	endpoint := c.Request.RouteTemplate
	if endpoint == "" {
		endpoint = c.Request.Path
	}
	return ListEntry{
		Path:        path,
		SessionID:   c.Session.ID,
		RecordedAt:  c.Session.RecordedAt,
		Service:     c.Session.Service,
		Method:      c.Request.Method,
		Endpoint:    endpoint,
		Status:      c.Response.Status,
		DurationMS:  c.Response.DurationMS,
		TotalEvents: c.Stats.TotalEvents,
		HasError:    c.ErrorInfo != nil,
	}
}

// collectCassettePaths walks dir for cassette files, newest date dirs last.
func collectCassettePaths(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, cassette.ExtJSON) || strings.HasSuffix(path, cassette.ExtGzip) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
