package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapedeck/tapedeck/internal/dashboard"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var dir, db, addr string

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve the cassette dashboard API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, dir, db, addr, cmd)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./cassettes", "cassette directory")
	cmd.Flags().StringVar(&db, "db", "", "index database path (default <dir>/.catalog.db)")
	cmd.Flags().StringVar(&addr, "addr", ":8731", "listen address")
	return cmd
}

func runServe(opts *RootOptions, dir, db, addr string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	logger := zap.NewNop()
	if opts.Verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return WrapExitError(ExitCommandError, "building logger", err)
		}
		defer logger.Sync()
	}

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
	formatter.VerboseLog("indexed %d cassette(s), skipped %d", result.Indexed, result.Skipped)

	server := &http.Server{
		Addr:              addr,
		Handler:           dashboard.New(dir, cat, dashboard.WithLogger(logger)).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(formatter.Writer, "dashboard listening on %s (cassettes: %s)\n", addr, dir)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitCommandError, "serving dashboard", err)
	}
	return nil
}
