package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// ValidationResult holds per-file validation outcomes.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// FileValidation is the outcome for one cassette file.
type FileValidation struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "validate <cassette-file>...",
		Short:         "Validate cassette files against the schema",
		Long: `Validate cassette files against the embedded schema.

Checks schema version support, structural shape, and field constraints.
Files recorded with an older supported schema are migrated before checking.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Valid: true}
	for _, path := range paths {
		formatter.VerboseLog("validating %s", path)

		c, err := cassette.Read(path)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "reading cassette", err)
		}

		file := FileValidation{Path: path, Valid: true}
		if problems := cassette.Validate(c); len(problems) > 0 {
			file.Valid = false
			file.Problems = problems
			result.Valid = false
		}
		result.Files = append(result.Files, file)
	}

	if opts.Format == "json" {
		if err := formatter.JSON(result); err != nil {
			return err
		}
	} else {
		for _, file := range result.Files {
			if file.Valid {
				fmt.Fprintf(formatter.Writer, "ok   %s\n", file.Path)
				continue
			}
			fmt.Fprintf(formatter.Writer, "FAIL %s\n", file.Path)
			for _, p := range file.Problems {
				fmt.Fprintf(formatter.Writer, "     %s\n", p)
			}
		}
	}

	if !result.Valid {
		invalid := 0
		for _, f := range result.Files {
			if !f.Valid {
				invalid++
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid cassette(s)", invalid))
	}
	return nil
}
