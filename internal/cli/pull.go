package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/storage"
)

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	var dir, bucket, prefix, region string

	cmd := &cobra.Command{
		Use:           "pull",
		Short:         "Download cassettes from S3",
		Long:          "Download every cassette under the bucket prefix into the local directory.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(rootOpts, dir, bucket, prefix, region, cmd)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./cassettes", "cassette directory")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket name")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix inside the bucket")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

func runPull(opts *RootOptions, dir, bucket, prefix, region string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	remote, err := storage.NewS3Store(cmd.Context(), bucket, prefix, region)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "connecting to s3", err)
	}
	if err := ensureDir(dir); err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "preparing local directory", err)
	}

	pulled, err := syncStores(cmd.Context(), remote, storage.NewLocalStore(dir))
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "downloading cassettes", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(map[string]any{"pulled": pulled, "dir": dir})
	}
	fmt.Fprintf(formatter.Writer, "pulled %d cassette(s) into %s\n", pulled, dir)
	return nil
}
