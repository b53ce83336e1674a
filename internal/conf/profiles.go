package conf

import (
	"maps"
	"slices"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// Profile names
const (
	ProfileBatch   = "batch"
	ProfileLive    = "live"
	DefaultProfile = ProfileBatch
)

// profile is a named set of defaults layered over the base configuration.
// Every value remains overridable by config file and environment.
type profile struct {
	description string
	values      map[string]any
}

var profiles = map[string]profile{
	ProfileBatch: {
		description: "file analysis: stricter silence floor, tighter spectral rejection, no overlap",
		values: map[string]any{
			"audio.silence_rms":           0.005,
			"audio.spectral.reject_ratio": 0.80,
			"audio.post_filter_floor":     0.001,
			"birdnet.overlap":             0.0,
			"pipeline.workers":            0,
		},
	},
	ProfileLive: {
		description: "live capture: lower noise floor, relaxed spectral rejection, 50% overlap",
		values: map[string]any{
			"audio.silence_rms":           0.001,
			"audio.spectral.reject_ratio": 0.95,
			"audio.post_filter_floor":     0.0005,
			"birdnet.overlap":             1.5,
			"pipeline.workers":            1,
		},
	},
}

// Profiles returns the names of the built-in profiles in sorted order
func Profiles() []string {
	return slices.Sorted(maps.Keys(profiles))
}

// ProfileDescription returns the one line description of a profile
func ProfileDescription(name string) string {
	return profiles[name].description
}

// applyProfile registers the profile values as defaults
func applyProfile(v *viper.Viper, name string) error {
	p, ok := profiles[name]
	if !ok {
		return errors.Newf("unknown configuration profile %q", name).
			Category(errors.CategoryConfiguration).
			Context("profile", name).
			Context("available", Profiles()).
			Build()
	}
	for key, value := range p.values {
		v.SetDefault(key, value)
	}
	return nil
}
