package cmd

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/cmd/benchmark"
	"github.com/tphakala/birdnet-pipeline/cmd/directory"
	"github.com/tphakala/birdnet-pipeline/cmd/file"
	"github.com/tphakala/birdnet-pipeline/cmd/profile"
	"github.com/tphakala/birdnet-pipeline/cmd/rangefilter"
	"github.com/tphakala/birdnet-pipeline/cmd/realtime"
	"github.com/tphakala/birdnet-pipeline/internal/buildinfo"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// options holds the flags that select where settings come from
type options struct {
	configFile string
	profile    string
}

// RootCommand creates and returns the root command. Settings are loaded
// into settings before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "birdnet-pipeline",
		Short:         "BirdNET audio classification pipeline",
		Long:          "Classify bird vocalizations in audio files, directories and live streams.",
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, opts); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		file.Command(settings),
		directory.Command(settings),
		realtime.Command(settings),
		rangefilter.Command(settings),
		profile.Command(settings),
		benchmark.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		profileName := opts.profile
		if profileName == "" {
			profileName = cmd.Annotations[conf.ProfileAnnotation]
		}
		loaded, err := conf.LoadWithFlags(opts.configFile, profileName, cmd.Flags())
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(settings)
	}

	return rootCmd
}

// initialize is called before any subcommand runs, once settings are loaded.
// It configures the central logger and optional error telemetry.
func initialize(settings *conf.Settings) error {
	logCfg := settings.Log
	if settings.Debug {
		logCfg.DefaultLevel = "debug"
		if logCfg.Console != nil {
			console := *logCfg.Console
			console.Level = "debug"
			logCfg.Console = &console
		}
	}
	cl, err := logger.NewCentralLogger(&logCfg)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "init-logger").
			Build()
	}
	logger.SetGlobal(cl)

	if settings.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              settings.Sentry.DSN,
			Debug:            settings.Sentry.Debug,
			Release:          buildinfo.Current().GetVersion(),
			AttachStacktrace: true,
		}); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("operation", "init-sentry").
				Build()
		}
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(settings.Sentry.Enabled))

	cl.Module("main").Debug("settings loaded",
		logger.String("profile", settings.Profile),
		logger.String("summary", settings.String()))
	return nil
}

// Shutdown flushes pending telemetry and log output. It is safe to call when
// initialize never ran.
func Shutdown() {
	sentry.Flush(sentryFlushTimeout)
	cl := logger.Global()
	if err := cl.Flush(); err != nil {
		fmt.Printf("error flushing log output: %v\n", err)
	}
	if err := cl.Close(); err != nil {
		fmt.Printf("error closing log output: %v\n", err)
	}
}

// setupFlags defines flags that are global to the command line interface.
// Flags bound to a settings key only override the configuration when given.
func setupFlags(rootCmd *cobra.Command, opts *options) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to the configuration file")
	flags.StringVar(&opts.profile, "profile", "", "Configuration profile: batch, live")

	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("model", "", "Path to the audio model (.tflite)")
	flags.String("labels", "", "Path to the label file")
	flags.String("meta-model", "", "Path to the optional range meta model (.tflite)")
	flags.String("taxonomy", "", "Path to the optional taxonomy database (JSON)")
	flags.Int("threads", 0, "Interpreter threads, 0 for auto")
	flags.Float64P("sensitivity", "s", 1.0, "Sigmoid sensitivity value between 0.5 and 1.5")
	flags.Float64P("threshold", "t", 0.1, "Confidence threshold for detections, value between 0.0 and 1.0")
	flags.Float64("overlap", 0, "Overlap value between 0.0 and 2.9")
	flags.Float64("latitude", 0, "Latitude for species prediction")
	flags.Float64("longitude", 0, "Longitude for species prediction")
	flags.Int("workers", 0, "Classification workers, 0 for auto")

	bindings := map[string]string{
		"debug":       "debug",
		"model":       "birdnet.modelpath",
		"labels":      "birdnet.labelpath",
		"meta-model":  "birdnet.metamodelpath",
		"taxonomy":    "birdnet.taxonomypath",
		"threads":     "birdnet.threads",
		"sensitivity": "birdnet.sensitivity",
		"threshold":   "birdnet.threshold",
		"overlap":     "birdnet.overlap",
		"latitude":    "birdnet.latitude",
		"longitude":   "birdnet.longitude",
		"workers":     "pipeline.workers",
	}
	for name, key := range bindings {
		if err := conf.BindFlag(flags, name, key); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
