package directory

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/analysis"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// Command creates a new directory command for analyzing all audio files in a directory.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory [path]",
		Short: "Analyze all audio files in a directory",
		Long:  "Analyze every WAV and FLAC file in a directory. Files whose results already exist are skipped.",
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := analysis.DirectoryAnalysis(cmd.Context(), settings, args[0],
				analysis.WithResultsWriter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			return printSummary(cmd, report)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// printSummary lists analyzed, skipped and failed files on stderr.
func printSummary(cmd *cobra.Command, report *analysis.DirectoryReport) error {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "Processed %d files, skipped %d, failed %d\n", len(report.Files), len(report.Skipped), len(report.Failed))
	failed := make([]string, 0, len(report.Failed))
	for path := range report.Failed {
		failed = append(failed, path)
	}
	slices.Sort(failed)
	for _, path := range failed {
		fmt.Fprintf(w, "  %s: %v\n", path, report.Failed[path])
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d files failed", len(report.Failed))
	}
	return nil
}

// setupFlags configures flags specific to the directory command.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Path to output directory")
	flags.StringP("format", "f", "table", "Output format: table, csv")

	for name, key := range map[string]string{
		"output": "output.path",
		"format": "output.format",
	} {
		if err := conf.BindFlag(flags, name, key); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
