// yaml.go: YAML rendering and atomic writes of settings
package conf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const redactedValue = "<redacted>"

// MarshalYAML renders settings as YAML with two space indentation
func MarshalYAML(settings *Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	return buf.Bytes(), nil
}

// Redacted returns a copy of the settings with secrets masked, for display
func (s *Settings) Redacted() *Settings {
	c := *s
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = redactedValue
	}
	return &c
}

// SaveYAMLConfig writes settings to configPath. It writes to a temporary
// file and then replaces the target so readers never see a partial file.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := MarshalYAML(settings)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config.yaml.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
		return fmt.Errorf("error writing temporary file: %w", err)
	}

	return finalizeUpdate(tempFile, configPath)
}

// finalizeUpdate closes the temporary file and renames it to replace the original config file
func finalizeUpdate(tempFile *os.File, configPath string) error {
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempFile.Name())
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFile.Name(), configPath); err != nil {
		_ = os.Remove(tempFile.Name())
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
