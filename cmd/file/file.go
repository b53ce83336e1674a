package file

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/analysis"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// Command creates a new file command for analyzing a single audio file.
func Command(settings *conf.Settings) *cobra.Command {
	var until []string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "file [input.wav]",
		Short: "Analyze an audio file",
		Long:  `Analyze a single WAV or FLAC file for bird calls and songs.`,
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []analysis.FileOption{analysis.WithResultsWriter(cmd.OutOrStdout())}
			if !quiet {
				opts = append(opts, analysis.WithProgress(cmd.ErrOrStderr()))
			}
			if len(until) > 0 {
				opts = append(opts, analysis.WithStopOnConfirmed(until...))
			}

			report, err := analysis.FileAnalysis(cmd.Context(), settings, args[0], opts...)
			if err != nil {
				return err
			}
			if report.OutputPath != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", report.OutputPath)
			}
			return analysis.WriteConfirmed(cmd.ErrOrStderr(), "Confirmed species", report.Confirmed)
		},
	}

	// Set up flags specific to the 'file' command
	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	cmd.Flags().StringSliceVar(&until, "until", nil, "Stop once one of these species is confirmed")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")

	return cmd
}

// setupFlags configures flags specific to the file command.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Path to output file or directory")
	flags.StringP("format", "f", "table", "Output format: table, csv")
	flags.Int("max-chunks", 0, "Stop after this many chunks, 0 for no limit")
	flags.Duration("max-duration", 0, "Stop after this much wall time, 0 for no limit")

	for name, key := range map[string]string{
		"output":       "output.path",
		"format":       "output.format",
		"max-chunks":   "pipeline.max_chunks",
		"max-duration": "pipeline.max_duration",
	} {
		if err := conf.BindFlag(flags, name, key); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
