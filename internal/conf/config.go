// config.go: settings structure and loading for birdnet-pipeline
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Audio stream constants shared by every stage of the pipeline.
const (
	SampleRate    = 48000                          // samples per second
	ChunkSeconds  = 3                              // seconds of audio per chunk
	ChunkSamples  = SampleRate * ChunkSeconds      // 144000 samples
	MinTailLength = SampleRate * ChunkSeconds / 2  // shortest tail chunk worth padding
	BitDepth      = 16                             // live capture sample width
	LiveHop       = ChunkSamples / 2               // 50% overlap in streaming use
)

// SentrySettings contains optional error telemetry configuration
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"` // report errors to Sentry
	DSN     string `mapstructure:"dsn" yaml:"dsn"`         // Sentry project DSN
	Debug   bool   `mapstructure:"debug" yaml:"debug"`     // Sentry SDK debug output
}

// MetaAlphaSettings holds the tiered blending parameters of the meta model
type MetaAlphaSettings struct {
	HighCut    float64 `mapstructure:"high_cut" yaml:"high_cut"`       // meta score at or above which a species is expected
	MidCut     float64 `mapstructure:"mid_cut" yaml:"mid_cut"`         // lower bound of the irruptive tier
	LowCut     float64 `mapstructure:"low_cut" yaml:"low_cut"`         // lower bound of the vagrant tier
	HighAlpha  float64 `mapstructure:"high_alpha" yaml:"high_alpha"`   // alpha for expected species
	MidAlpha   float64 `mapstructure:"mid_alpha" yaml:"mid_alpha"`     // alpha for irruptive species
	LowAlpha   float64 `mapstructure:"low_alpha" yaml:"low_alpha"`     // alpha for vagrant species
	FloorAlpha float64 `mapstructure:"floor_alpha" yaml:"floor_alpha"` // alpha for outliers
}

// RegionSettings defines the bounding box the MetaProfile is built over
type RegionSettings struct {
	Enabled  bool    `mapstructure:"enabled" yaml:"enabled"`     // build a MetaProfile before analysis
	MinLat   float64 `mapstructure:"min_lat" yaml:"min_lat"`     // southern edge
	MaxLat   float64 `mapstructure:"max_lat" yaml:"max_lat"`     // northern edge
	MinLon   float64 `mapstructure:"min_lon" yaml:"min_lon"`     // western edge
	MaxLon   float64 `mapstructure:"max_lon" yaml:"max_lon"`     // eastern edge
	Padding  float64 `mapstructure:"padding" yaml:"padding"`     // degrees added on every side
	GridStep float64 `mapstructure:"grid_step" yaml:"grid_step"` // grid spacing in degrees
	Workers  int     `mapstructure:"workers" yaml:"workers"`     // concurrent meta scorers, 0 for auto
}

// BirdNETConfig holds model, label and classification settings
type BirdNETConfig struct {
	ModelPath     string            `mapstructure:"modelpath" yaml:"modelpath"`         // audio model (.tflite)
	LabelPath     string            `mapstructure:"labelpath" yaml:"labelpath"`         // label file matching model output order
	MetaModelPath string            `mapstructure:"metamodelpath" yaml:"metamodelpath"` // optional geo-temporal meta model
	TaxonomyPath  string            `mapstructure:"taxonomypath" yaml:"taxonomypath"`   // optional taxonomy database (JSON)
	Threads       int               `mapstructure:"threads" yaml:"threads"`             // interpreter threads per worker, 0 for auto
	Sensitivity   float64           `mapstructure:"sensitivity" yaml:"sensitivity"`     // sigmoid sensitivity
	Threshold     float64           `mapstructure:"threshold" yaml:"threshold"`         // per-chunk confidence floor
	TopK          int               `mapstructure:"topk" yaml:"topk"`                   // detections kept per chunk
	Latitude      float64           `mapstructure:"latitude" yaml:"latitude"`           // recording location
	Longitude     float64           `mapstructure:"longitude" yaml:"longitude"`         // recording location
	WeekFrom      int               `mapstructure:"weekfrom" yaml:"weekfrom"`           // first week of the recording window, 0 for today
	WeekTo        int               `mapstructure:"weekto" yaml:"weekto"`               // last week of the recording window, 0 for WeekFrom
	Overlap       float64           `mapstructure:"overlap" yaml:"overlap"`             // chunk overlap in seconds
	MetaAlpha     MetaAlphaSettings `mapstructure:"meta_alpha" yaml:"meta_alpha"`       // meta blending tiers
	Region        RegionSettings    `mapstructure:"region" yaml:"region"`               // MetaProfile region
}

// HasLocation reports whether a recording location is configured
func (b *BirdNETConfig) HasLocation() bool {
	return b.Latitude != 0 || b.Longitude != 0
}

// SpectralSettings configures the Goertzel based spectral gate
type SpectralSettings struct {
	RejectRatio float64 `mapstructure:"reject_ratio" yaml:"reject_ratio"` // max share of energy in an edge band
	Epsilon     float64 `mapstructure:"epsilon" yaml:"epsilon"`           // total energy below which the gate passes
}

// BandpassSettings configures the bandpass filter cutoffs in Hz
type BandpassSettings struct {
	Low  float64 `mapstructure:"low" yaml:"low"`
	High float64 `mapstructure:"high" yaml:"high"`
}

// AudioSettings contains the chunk pre-filter thresholds
type AudioSettings struct {
	SilenceRMS      float64          `mapstructure:"silence_rms" yaml:"silence_rms"`             // raw RMS below which a chunk is silent
	ClipPeak        float64          `mapstructure:"clip_peak" yaml:"clip_peak"`                 // peak above which a chunk may be clipped
	ClipRMS         float64          `mapstructure:"clip_rms" yaml:"clip_rms"`                   // RMS above which a chunk may be clipped
	Spectral        SpectralSettings `mapstructure:"spectral" yaml:"spectral"`                   // spectral gate
	Bandpass        BandpassSettings `mapstructure:"bandpass" yaml:"bandpass"`                   // bandpass cutoffs
	PostFilterFloor float64          `mapstructure:"post_filter_floor" yaml:"post_filter_floor"` // filtered peak below which a chunk is dropped
	NormalizeTarget float64          `mapstructure:"normalize_target" yaml:"normalize_target"`   // peak quiet chunks are boosted to
}

// AggregatorSettings configures detection confirmation
type AggregatorSettings struct {
	Window            int                `mapstructure:"window" yaml:"window"`                       // live window length in chunks
	ConfirmCount      int                `mapstructure:"confirm_count" yaml:"confirm_count"`         // qualifying slots required
	Threshold         float64            `mapstructure:"threshold" yaml:"threshold"`                 // default slot threshold
	SpeciesThresholds map[string]float64 `mapstructure:"species_thresholds" yaml:"species_thresholds"` // per-species overrides
	NonBird           []string           `mapstructure:"non_bird" yaml:"non_bird"`                   // extra labels never tracked
}

// FilterSettings configures the final anchor and family filter
type FilterSettings struct {
	Anchor float64 `mapstructure:"anchor" yaml:"anchor"` // confidence that bypasses confirmation
}

// PipelineSettings configures the producer, worker and collector pipeline
type PipelineSettings struct {
	Workers     int           `mapstructure:"workers" yaml:"workers"`           // classification workers, 0 for auto
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`     // bounded channel capacity
	MaxChunks   int           `mapstructure:"max_chunks" yaml:"max_chunks"`     // chunk cap per file, 0 for none
	MaxDuration time.Duration `mapstructure:"max_duration" yaml:"max_duration"` // wall time cap per file, 0 for none
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// RealtimeSettings configures live analysis
type RealtimeSettings struct {
	Source         string          `mapstructure:"source" yaml:"source"`                   // "device" or "stdin"
	Device         string          `mapstructure:"device" yaml:"device"`                   // capture device name, empty for default
	ReportInterval time.Duration   `mapstructure:"report_interval" yaml:"report_interval"` // confirmed list print interval
	Metrics        MetricsSettings `mapstructure:"metrics" yaml:"metrics"`
}

// OutputSettings configures result writers
type OutputSettings struct {
	Format string `mapstructure:"format" yaml:"format"` // "table" or "csv"
	Path   string `mapstructure:"path" yaml:"path"`     // output file, empty for stdout
}

// Settings contains all configuration options for birdnet-pipeline
type Settings struct {
	Debug      bool                 `mapstructure:"debug" yaml:"debug"`
	Profile    string               `mapstructure:"profile" yaml:"profile"`
	Log        logger.LoggingConfig `mapstructure:"log" yaml:"log"`
	Sentry     SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
	BirdNET    BirdNETConfig        `mapstructure:"birdnet" yaml:"birdnet"`
	Audio      AudioSettings        `mapstructure:"audio" yaml:"audio"`
	Aggregator AggregatorSettings   `mapstructure:"aggregator" yaml:"aggregator"`
	Filter     FilterSettings       `mapstructure:"filter" yaml:"filter"`
	Pipeline   PipelineSettings     `mapstructure:"pipeline" yaml:"pipeline"`
	Realtime   RealtimeSettings     `mapstructure:"realtime" yaml:"realtime"`
	Output     OutputSettings       `mapstructure:"output" yaml:"output"`
}

// Load reads defaults, the named profile, the configuration file and
// environment variables into a validated Settings value. An empty
// configFile searches the default config paths; a missing file there is
// not an error. An empty profile uses the "profile" key, then "batch".
func Load(configFile, profile string) (*Settings, error) {
	return LoadWithFlags(configFile, profile, nil)
}

// LoadDefaults returns the built-in settings of a profile without reading
// any configuration file or environment variable.
func LoadDefaults(profile string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)
	return finalize(v, profile)
}

func finalize(v *viper.Viper, profile string) (*Settings, error) {
	name := strings.ToLower(strings.TrimSpace(profile))
	if name == "" {
		name = strings.ToLower(v.GetString("profile"))
	}
	if name == "" {
		name = DefaultProfile
	}
	if err := applyProfile(v, name); err != nil {
		return nil, err
	}
	v.Set("profile", name)

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, apperrors.New(err).
			Category(apperrors.CategoryConfiguration).
			Context("operation", "unmarshal-settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, apperrors.New(err).
			Category(apperrors.CategoryValidation).
			Context("profile", name).
			Build()
	}

	return settings, nil
}

// readConfigFile loads an explicit config file or searches the default paths
func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return apperrors.New(err).
				Category(apperrors.CategoryConfiguration).
				Context("operation", "read-config").
				Context("config_file", filepath.Base(configFile)).
				Build()
		}
		GetLogger().Debug("loaded config file", logger.String("path", configFile))
		return nil
	}

	v.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return apperrors.New(err).
			Category(apperrors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}
	GetLogger().Debug("loaded config file", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// ExpandPath expands environment variables and a leading ~ in a configured path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~"+string(os.PathSeparator)) || expanded == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return filepath.Clean(expanded)
}

// ChunkStep returns the hop between chunk starts in samples for an overlap in seconds
func ChunkStep(overlap float64) int {
	step := int((ChunkSeconds - overlap) * SampleRate)
	return max(step, 1)
}

// String renders a short profile summary for log lines
func (s *Settings) String() string {
	return fmt.Sprintf("profile=%s workers=%d overlap=%.2fs threshold=%.2f", s.Profile, s.Pipeline.Workers, s.BirdNET.Overlap, s.BirdNET.Threshold)
}
