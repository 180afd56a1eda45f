package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/storage"
)

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	var dir, bucket, prefix, region string

	cmd := &cobra.Command{
		Use:           "push",
		Short:         "Upload local cassettes to S3",
		Long:          "Upload every cassette under the local directory to an S3 bucket, preserving the date-directory layout.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(rootOpts, dir, bucket, prefix, region, cmd)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./cassettes", "cassette directory")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket name")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix inside the bucket")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

func runPush(opts *RootOptions, dir, bucket, prefix, region string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	remote, err := storage.NewS3Store(cmd.Context(), bucket, prefix, region)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "connecting to s3", err)
	}

	pushed, err := syncStores(cmd.Context(), storage.NewLocalStore(dir), remote)
	if err != nil {
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "uploading cassettes", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(map[string]any{"pushed": pushed, "bucket": bucket, "prefix": prefix})
	}
	fmt.Fprintf(formatter.Writer, "pushed %d cassette(s) to s3://%s/%s\n", pushed, bucket, prefix)
	return nil
}

// syncStores copies every object from src to dst and returns the count.
func syncStores(ctx context.Context, src, dst storage.Store) (int, error) {
	objects, err := src.List(ctx, "")
	if err != nil {
		return 0, err
	}
	for i, obj := range objects {
		data, err := src.Get(ctx, obj.Key)
		if err != nil {
			return i, fmt.Errorf("read %s: %w", obj.Key, err)
		}
		if err := dst.Put(ctx, obj.Key, data); err != nil {
			return i, fmt.Errorf("write %s: %w", obj.Key, err)
		}
	}
	return len(objects), nil
}

// ensureDir exists for pull targets written through a LocalStore.
func ensureDir(dir string) error {
	if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
