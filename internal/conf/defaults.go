// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Sets default values for the configuration. Profile specific values are
// layered on top by applyProfile.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("profile", DefaultProfile)

	v.SetDefault("log.default_level", logger.DefaultLogLevel)
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("log.console.level", logger.DefaultLogLevel)
	v.SetDefault("log.file_output.enabled", false)
	v.SetDefault("log.file_output.path", logger.DefaultLogPath)
	v.SetDefault("log.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("log.module_levels", map[string]string{})

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.debug", false)

	v.SetDefault("birdnet.modelpath", "")
	v.SetDefault("birdnet.labelpath", "")
	v.SetDefault("birdnet.metamodelpath", "")
	v.SetDefault("birdnet.taxonomypath", "")
	v.SetDefault("birdnet.threads", 0)
	v.SetDefault("birdnet.sensitivity", 1.0)
	v.SetDefault("birdnet.threshold", 0.1)
	v.SetDefault("birdnet.topk", 10)
	v.SetDefault("birdnet.latitude", 0.000)
	v.SetDefault("birdnet.longitude", 0.000)
	v.SetDefault("birdnet.weekfrom", 0)
	v.SetDefault("birdnet.weekto", 0)
	v.SetDefault("birdnet.overlap", 0.0)

	v.SetDefault("birdnet.meta_alpha.high_cut", 0.30)
	v.SetDefault("birdnet.meta_alpha.mid_cut", 0.05)
	v.SetDefault("birdnet.meta_alpha.low_cut", 0.01)
	v.SetDefault("birdnet.meta_alpha.high_alpha", 0.10)
	v.SetDefault("birdnet.meta_alpha.mid_alpha", 0.50)
	v.SetDefault("birdnet.meta_alpha.low_alpha", 0.25)
	v.SetDefault("birdnet.meta_alpha.floor_alpha", 0.02)

	v.SetDefault("birdnet.region.enabled", false)
	v.SetDefault("birdnet.region.min_lat", 0.0)
	v.SetDefault("birdnet.region.max_lat", 0.0)
	v.SetDefault("birdnet.region.min_lon", 0.0)
	v.SetDefault("birdnet.region.max_lon", 0.0)
	v.SetDefault("birdnet.region.padding", 1.0)
	v.SetDefault("birdnet.region.grid_step", 1.0)
	v.SetDefault("birdnet.region.workers", 0)

	v.SetDefault("audio.clip_peak", 0.99)
	v.SetDefault("audio.clip_rms", 0.5)
	v.SetDefault("audio.spectral.epsilon", 1e-10)
	v.SetDefault("audio.bandpass.low", 80.0)
	v.SetDefault("audio.bandpass.high", 15000.0)
	v.SetDefault("audio.normalize_target", 0.9)

	v.SetDefault("aggregator.window", 5)
	v.SetDefault("aggregator.confirm_count", 2)
	v.SetDefault("aggregator.threshold", 0.5)
	v.SetDefault("aggregator.species_thresholds", map[string]float64{})
	v.SetDefault("aggregator.non_bird", []string{})

	v.SetDefault("filter.anchor", 0.75)

	v.SetDefault("pipeline.queue_size", 4)
	v.SetDefault("pipeline.max_chunks", 0)
	v.SetDefault("pipeline.max_duration", time.Duration(0))

	v.SetDefault("realtime.source", "device")
	v.SetDefault("realtime.device", "")
	v.SetDefault("realtime.report_interval", 15*time.Second)
	v.SetDefault("realtime.metrics.enabled", false)
	v.SetDefault("realtime.metrics.listen", "127.0.0.1:8090")

	v.SetDefault("output.format", "table")
	v.SetDefault("output.path", "")
}
