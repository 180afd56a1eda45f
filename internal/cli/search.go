package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/catalog"
)

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dir, db string
		q       catalog.Query
		reindex bool
	)

	cmd := &cobra.Command{
		Use:           "search",
		Short:         "Search indexed cassettes",
		Long:          "Search the cassette index. Run `tapedeck index` first, or pass --reindex.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(rootOpts, dir, db, q, reindex, cmd)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./cassettes", "cassette directory")
	cmd.Flags().StringVar(&db, "db", "", "index database path (default <dir>/.catalog.db)")
	cmd.Flags().StringVar(&q.Method, "method", "", "filter by HTTP method")
	cmd.Flags().StringVar(&q.Endpoint, "endpoint", "", "filter by endpoint substring")
	cmd.Flags().StringVar(&q.Service, "service", "", "filter by service name")
	cmd.Flags().StringVar(&q.Env, "env", "", "filter by environment")
	cmd.Flags().IntVar(&q.StatusMin, "status-min", 0, "minimum response status")
	cmd.Flags().IntVar(&q.StatusMax, "status-max", 0, "maximum response status")
	cmd.Flags().BoolVar(&q.ErrorsOnly, "errors-only", false, "only cassettes with errors or 5xx responses")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum results (default 100)")
	cmd.Flags().BoolVar(&reindex, "reindex", false, "refresh the index before searching")
	return cmd
}

func runSearch(opts *RootOptions, dir, db string, q catalog.Query, reindex bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cat, err := openCatalog(dir, db)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening catalog", err)
	}
	defer cat.Close()

	if reindex {
		result, err := cat.Index(cmd.Context(), dir)
		if err != nil {
			_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
			return WrapExitError(ExitCommandError, "indexing cassettes", err)
		}
		formatter.VerboseLog("reindexed %d cassette(s)", result.Indexed)
	}

	entries, err := cat.Search(cmd.Context(), q)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "searching cassettes", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(map[string]any{"matches": entries, "count": len(entries)})
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "no matches")
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
