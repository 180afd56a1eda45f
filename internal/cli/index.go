package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/catalog"
)

// defaultCatalogName is the sqlite index file kept inside the cassette dir.
const defaultCatalogName = ".catalog.db"

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	var dir, db string

	cmd := &cobra.Command{
		Use:           "index",
		Short:         "Build or refresh the cassette search index",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(rootOpts, dir, db, cmd)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./cassettes", "cassette directory")
	cmd.Flags().StringVar(&db, "db", "", "index database path (default <dir>/.catalog.db)")
	return cmd
}

func runIndex(opts *RootOptions, dir, db string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cat, err := openCatalog(dir, db)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening catalog", err)
	}
	defer cat.Close()

	result, err := cat.Index(cmd.Context(), dir)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "indexing cassettes", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(map[string]any{
			"indexed":  result.Indexed,
			"skipped":  result.Skipped,
			"problems": result.Problems,
		})
	}

	fmt.Fprintf(formatter.Writer, "indexed %d cassette(s), skipped %d\n", result.Indexed, result.Skipped)
	for _, p := range result.Problems {
		fmt.Fprintf(formatter.Writer, "  skipped: %s\n", p)
	}
	return nil
}

func openCatalog(dir, db string) (*catalog.Catalog, error) {
	if db == "" {
		db = filepath.Join(dir, defaultCatalogName)
	}
	return catalog.Open(db)
}
