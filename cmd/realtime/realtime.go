package realtime

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/analysis"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// Command creates a new command for real-time audio analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Analyze audio in realtime mode",
		Long: `Start analyzing incoming audio in real time looking for bird calls.

Audio is read from a capture device or from 16-bit 48 kHz mono PCM on stdin.
On Unix systems SIGUSR1 pauses the session, SIGUSR2 resumes it and SIGHUP
restarts it with a fresh confirmation state.`,
		Annotations: map[string]string{conf.ProfileAnnotation: conf.ProfileLive},
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := analysis.LiveSourceFromSettings(&settings.Realtime, cmd.InOrStdin())
			if err != nil {
				return err
			}

			control := make(chan analysis.Control, 4)
			stop := notifyControls(control)
			defer stop()

			return analysis.RealtimeAnalysis(cmd.Context(), settings, source, cmd.OutOrStdout(),
				analysis.WithControl(control))
		},
	}

	// Set up flags specific to the 'realtime' command
	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("source", "device", "Audio source: device, stdin")
	flags.String("device", "", "Capture device name, empty for the system default")
	flags.Duration("report-interval", 0, "Interval between confirmed species reports")
	flags.Bool("metrics", false, "Enable Prometheus metrics endpoint")
	flags.String("listen", "", "Listen address and port of the metrics endpoint")

	for name, key := range map[string]string{
		"source":          "realtime.source",
		"device":          "realtime.device",
		"report-interval": "realtime.report_interval",
		"metrics":         "realtime.metrics.enabled",
		"listen":          "realtime.metrics.listen",
	} {
		if err := conf.BindFlag(flags, name, key); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
