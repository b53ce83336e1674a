package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func stubCommand(annotations map[string]string) *cobra.Command {
	return &cobra.Command{
		Use:         "stub",
		Annotations: annotations,
		RunE:        func(*cobra.Command, []string) error { return nil },
	}
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "birdnet:\n  threshold: 0.3\n  latitude: 10\n")

	settings := &conf.Settings{}
	root := RootCommand(settings)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "--threshold", "0.42", "profile", "show"})
	require.NoError(t, root.Execute())
	defer Shutdown()

	assert.InDelta(t, 0.42, settings.BirdNET.Threshold, 1e-9)
	assert.InDelta(t, 10, settings.BirdNET.Latitude, 1e-9)
	assert.Equal(t, conf.ProfileBatch, settings.Profile)
	assert.Contains(t, out.String(), "threshold: 0.42")
}

func TestRootCommand_CommandDefaultProfile(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	settings := &conf.Settings{}
	root := RootCommand(settings)
	root.AddCommand(stubCommand(map[string]string{conf.ProfileAnnotation: conf.ProfileLive}))
	root.SetArgs([]string{"--config", path, "stub"})
	require.NoError(t, root.Execute())
	defer Shutdown()

	assert.Equal(t, conf.ProfileLive, settings.Profile)
	assert.InDelta(t, 1.5, settings.BirdNET.Overlap, 1e-9)

	// an explicit profile wins over the command default
	root = RootCommand(settings)
	root.AddCommand(stubCommand(map[string]string{conf.ProfileAnnotation: conf.ProfileLive}))
	root.SetArgs([]string{"--config", path, "--profile", "batch", "stub"})
	require.NoError(t, root.Execute())
	assert.Equal(t, conf.ProfileBatch, settings.Profile)
}

func TestRootCommand_InvalidFlagValue(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	root := RootCommand(&conf.Settings{})
	root.AddCommand(stubCommand(nil))
	root.SetArgs([]string{"--config", path, "--latitude", "91", "stub"})
	require.Error(t, root.Execute())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"file", "directory", "realtime", "range", "profile", "benchmark"})
}
