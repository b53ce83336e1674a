// conf/validate.go

package conf

import (
	"fmt"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateBirdNETSettings(&s.BirdNET) },
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateAggregatorSettings(&s.Aggregator) },
		func(s *Settings) error { return validateFilterSettings(&s.Filter) },
		func(s *Settings) error { return validatePipelineSettings(&s.Pipeline) },
		func(s *Settings) error { return validateRealtimeSettings(&s.Realtime) },
		func(s *Settings) error { return validateOutputSettings(&s.Output) },
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "Sentry DSN must be set when Sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// validateBirdNETSettings validates the classification settings
func validateBirdNETSettings(settings *BirdNETConfig) error {
	var errs []string

	if settings.Sensitivity <= 0 || settings.Sensitivity > 1.5 {
		errs = append(errs, "BirdNET sensitivity must be greater than 0 and at most 1.5")
	}
	if !inUnit(settings.Threshold) {
		errs = append(errs, "BirdNET threshold must be between 0 and 1")
	}
	if settings.TopK < 1 {
		errs = append(errs, "BirdNET topk must be at least 1")
	}
	if settings.Overlap < 0 || settings.Overlap > 2.99 {
		errs = append(errs, "BirdNET overlap value must be between 0 and 2.99 seconds")
	}
	if settings.Longitude < -180 || settings.Longitude > 180 {
		errs = append(errs, "BirdNET longitude must be between -180 and 180")
	}
	if settings.Latitude < -90 || settings.Latitude > 90 {
		errs = append(errs, "BirdNET latitude must be between -90 and 90")
	}
	if settings.Threads < 0 {
		errs = append(errs, "BirdNET threads must be at least 0")
	}
	if settings.WeekFrom < 0 || settings.WeekFrom > 48 || settings.WeekTo < 0 || settings.WeekTo > 48 {
		errs = append(errs, "BirdNET weeks must be between 1 and 48, or 0 for the current week")
	}
	if settings.WeekFrom > 0 && settings.WeekTo > 0 && settings.WeekTo < settings.WeekFrom {
		errs = append(errs, "BirdNET weekto must not precede weekfrom")
	}

	a := settings.MetaAlpha
	if !(a.HighCut > a.MidCut && a.MidCut > a.LowCut && a.LowCut >= 0 && a.HighCut <= 1) {
		errs = append(errs, "meta alpha cuts must satisfy 1 >= high_cut > mid_cut > low_cut >= 0")
	}
	for name, alpha := range map[string]float64{
		"high_alpha": a.HighAlpha, "mid_alpha": a.MidAlpha, "low_alpha": a.LowAlpha, "floor_alpha": a.FloorAlpha,
	} {
		if !inUnit(alpha) {
			errs = append(errs, fmt.Sprintf("meta alpha %s must be between 0 and 1", name))
		}
	}

	if r := settings.Region; r.Enabled {
		if r.MinLat > r.MaxLat || r.MinLon > r.MaxLon {
			errs = append(errs, "region bounds must satisfy min <= max")
		}
		if r.GridStep <= 0 {
			errs = append(errs, "region grid_step must be positive")
		}
		if r.Padding < 0 {
			errs = append(errs, "region padding must not be negative")
		}
		if r.Workers < 0 {
			errs = append(errs, "region workers must be at least 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("BirdNET settings errors: %v", errs)
	}
	return nil
}

// validateAudioSettings validates the chunk pre-filter thresholds
func validateAudioSettings(settings *AudioSettings) error {
	var errs []string

	if settings.SilenceRMS < 0 || settings.SilenceRMS >= 1 {
		errs = append(errs, "silence_rms must be in [0, 1)")
	}
	if !inUnit(settings.ClipPeak) || !inUnit(settings.ClipRMS) {
		errs = append(errs, "clip_peak and clip_rms must be between 0 and 1")
	}
	if settings.Spectral.RejectRatio <= 0 || settings.Spectral.RejectRatio > 1 {
		errs = append(errs, "spectral reject_ratio must be in (0, 1]")
	}
	if settings.Spectral.Epsilon < 0 {
		errs = append(errs, "spectral epsilon must not be negative")
	}
	nyquist := float64(SampleRate) / 2
	if settings.Bandpass.Low <= 0 || settings.Bandpass.High >= nyquist || settings.Bandpass.Low >= settings.Bandpass.High {
		errs = append(errs, fmt.Sprintf("bandpass cutoffs must satisfy 0 < low < high < %g", nyquist))
	}
	if settings.PostFilterFloor < 0 {
		errs = append(errs, "post_filter_floor must not be negative")
	}
	if settings.NormalizeTarget <= 0 || settings.NormalizeTarget > 1 {
		errs = append(errs, "normalize_target must be in (0, 1]")
	}
	if settings.PostFilterFloor >= settings.NormalizeTarget {
		errs = append(errs, "post_filter_floor must be below normalize_target")
	}

	if len(errs) > 0 {
		return fmt.Errorf("audio settings errors: %v", errs)
	}
	return nil
}

// validateAggregatorSettings validates confirmation settings
func validateAggregatorSettings(settings *AggregatorSettings) error {
	var errs []string

	if settings.Window < 1 {
		errs = append(errs, "aggregator window must be at least 1")
	}
	if settings.ConfirmCount < 1 {
		errs = append(errs, "aggregator confirm_count must be at least 1")
	}
	if !inUnit(settings.Threshold) {
		errs = append(errs, "aggregator threshold must be between 0 and 1")
	}
	for species, threshold := range settings.SpeciesThresholds {
		if !inUnit(threshold) {
			errs = append(errs, fmt.Sprintf("threshold for %s must be between 0 and 1", species))
		}
	}
	for _, label := range settings.NonBird {
		if strings.TrimSpace(label) == "" {
			errs = append(errs, "non_bird labels must not be empty")
			break
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("aggregator settings errors: %v", errs)
	}
	return nil
}

func validateFilterSettings(settings *FilterSettings) error {
	if !inUnit(settings.Anchor) {
		return fmt.Errorf("filter anchor must be between 0 and 1")
	}
	return nil
}

func validatePipelineSettings(settings *PipelineSettings) error {
	var errs []string

	if settings.Workers < 0 {
		errs = append(errs, "pipeline workers must be at least 0")
	}
	if settings.QueueSize < 1 {
		errs = append(errs, "pipeline queue_size must be at least 1")
	}
	if settings.MaxChunks < 0 {
		errs = append(errs, "pipeline max_chunks must not be negative")
	}
	if settings.MaxDuration < 0 {
		errs = append(errs, "pipeline max_duration must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("pipeline settings errors: %v", errs)
	}
	return nil
}

func validateRealtimeSettings(settings *RealtimeSettings) error {
	switch settings.Source {
	case "device", "stdin":
	default:
		return fmt.Errorf("realtime source must be \"device\" or \"stdin\", got %q", settings.Source)
	}
	if settings.ReportInterval <= 0 {
		return fmt.Errorf("realtime report_interval must be positive")
	}
	if settings.Metrics.Enabled && settings.Metrics.Listen == "" {
		return fmt.Errorf("realtime metrics listen address must be set when metrics are enabled")
	}
	return nil
}

func validateOutputSettings(settings *OutputSettings) error {
	switch settings.Format {
	case "table", "csv":
		return nil
	default:
		return fmt.Errorf("output format must be \"table\" or \"csv\", got %q", settings.Format)
	}
}
