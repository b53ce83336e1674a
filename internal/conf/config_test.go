package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

func TestLoadDefaults_Profiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		profile     string
		silenceRMS  float64
		rejectRatio float64
		floor       float64
		overlap     float64
		workers     int
	}{
		{ProfileBatch, 0.005, 0.80, 0.001, 0, 0},
		{ProfileLive, 0.001, 0.95, 0.0005, 1.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			t.Parallel()

			s, err := LoadDefaults(tt.profile)
			require.NoError(t, err)

			assert.Equal(t, tt.profile, s.Profile)
			assert.InDelta(t, tt.silenceRMS, s.Audio.SilenceRMS, 1e-12)
			assert.InDelta(t, tt.rejectRatio, s.Audio.Spectral.RejectRatio, 1e-12)
			assert.InDelta(t, tt.floor, s.Audio.PostFilterFloor, 1e-12)
			assert.InDelta(t, tt.overlap, s.BirdNET.Overlap, 1e-12)
			assert.Equal(t, tt.workers, s.Pipeline.Workers)

			// shared defaults
			assert.InDelta(t, 0.99, s.Audio.ClipPeak, 1e-12)
			assert.InDelta(t, 0.5, s.Audio.ClipRMS, 1e-12)
			assert.InDelta(t, 80.0, s.Audio.Bandpass.Low, 1e-12)
			assert.InDelta(t, 15000.0, s.Audio.Bandpass.High, 1e-12)
			assert.InDelta(t, 0.9, s.Audio.NormalizeTarget, 1e-12)
			assert.InDelta(t, 0.1, s.BirdNET.Threshold, 1e-12)
			assert.Equal(t, 10, s.BirdNET.TopK)
			assert.Equal(t, 2, s.Aggregator.ConfirmCount)
			assert.Equal(t, 5, s.Aggregator.Window)
			assert.InDelta(t, 0.75, s.Filter.Anchor, 1e-12)
			assert.Equal(t, 4, s.Pipeline.QueueSize)
			assert.InDelta(t, 0.30, s.BirdNET.MetaAlpha.HighCut, 1e-12)
			assert.InDelta(t, 0.02, s.BirdNET.MetaAlpha.FloorAlpha, 1e-12)
		})
	}
}

func TestLoadDefaults_EmptyProfileIsBatch(t *testing.T) {
	t.Parallel()

	s, err := LoadDefaults("")
	require.NoError(t, err)
	assert.Equal(t, ProfileBatch, s.Profile)
}

func TestLoadDefaults_UnknownProfile(t *testing.T) {
	t.Parallel()

	_, err := LoadDefaults("studio")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "studio")
}

func TestProfiles(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{ProfileBatch, ProfileLive}, Profiles())
	assert.NotEmpty(t, ProfileDescription(ProfileLive))
}

func TestLoad_ConfigFileOverridesProfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
profile: live
audio:
  silence_rms: 0.002
  spectral:
    reject_ratio: 0.9
aggregator:
  species_thresholds:
    Turdus merula: 0.7
  non_bird:
    - Cricket
pipeline:
  max_duration: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ProfileLive, s.Profile)
	assert.InDelta(t, 0.002, s.Audio.SilenceRMS, 1e-12)
	assert.InDelta(t, 0.9, s.Audio.Spectral.RejectRatio, 1e-12)
	// untouched live profile value
	assert.InDelta(t, 0.0005, s.Audio.PostFilterFloor, 1e-12)
	assert.Equal(t, 90*time.Second, s.Pipeline.MaxDuration)
	assert.Equal(t, []string{"Cricket"}, s.Aggregator.NonBird)
	assert.Contains(t, s.Aggregator.SpeciesThresholds, "turdus merula")
}

func TestLoad_ExplicitProfileWins(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: live\n"), 0o600))

	s, err := Load(path, "batch")
	require.NoError(t, err)
	assert.Equal(t, ProfileBatch, s.Profile)
	assert.InDelta(t, 0.80, s.Audio.Spectral.RejectRatio, 1e-12)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("BIRDNET_LATITUDE", "60.17")
	t.Setenv("BIRDNET_WORKERS", "3")
	t.Setenv("BIRDNET_PROFILE", "live")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("birdnet:\n  latitude: 10\n"), 0o600))

	s, err := Load(path, "")
	require.NoError(t, err)
	assert.InDelta(t, 60.17, s.BirdNET.Latitude, 1e-9)
	assert.Equal(t, 3, s.Pipeline.Workers)
	assert.Equal(t, ProfileLive, s.Profile)
}

func TestLoad_ValidationAccumulates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
birdnet:
  latitude: 120
audio:
  bandpass:
    low: 20000
    high: 100
pipeline:
  queue_size: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path, "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestValidateSettings_MetaAlphaOrdering(t *testing.T) {
	t.Parallel()

	s, err := LoadDefaults(ProfileBatch)
	require.NoError(t, err)

	s.BirdNET.MetaAlpha.MidCut = 0.5
	err = ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meta alpha cuts")
}

func TestSaveYAMLConfig_Reloads(t *testing.T) {
	t.Parallel()

	s, err := LoadDefaults(ProfileLive)
	require.NoError(t, err)
	s.Aggregator.SpeciesThresholds = map[string]float64{"parus major": 0.6}
	s.Aggregator.NonBird = []string{"Cricket"}
	s.Pipeline.MaxDuration = 2 * time.Minute

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, s))

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, s.Audio, loaded.Audio)
	assert.Equal(t, s.Aggregator, loaded.Aggregator)
	assert.Equal(t, s.Pipeline, loaded.Pipeline)
	assert.Equal(t, ProfileLive, loaded.Profile)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{Sentry: SentrySettings{Enabled: true, DSN: "https://key@sentry.example/1"}}
	out, err := MarshalYAML(s.Redacted())
	require.NoError(t, err)
	assert.NotContains(t, string(out), "key@sentry")
	assert.Equal(t, "https://key@sentry.example/1", s.Sentry.DSN)
}

func TestChunkStep(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ChunkSamples, ChunkStep(0))
	assert.Equal(t, LiveHop, ChunkStep(1.5))
	assert.Equal(t, 1, ChunkStep(3))
}
