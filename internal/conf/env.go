// env.go - Environment variable configuration and validation for birdnet-pipeline
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIRDNET_DEBUG", validateEnvBool},
		{"profile", "BIRDNET_PROFILE", validateEnvProfile},

		// Model and label assets
		{"birdnet.modelpath", "BIRDNET_MODELPATH", validateEnvPath},
		{"birdnet.labelpath", "BIRDNET_LABELPATH", validateEnvPath},
		{"birdnet.metamodelpath", "BIRDNET_METAMODELPATH", validateEnvPath},
		{"birdnet.taxonomypath", "BIRDNET_TAXONOMYPATH", validateEnvPath},

		// Classification
		{"birdnet.latitude", "BIRDNET_LATITUDE", validateEnvLatitude},
		{"birdnet.longitude", "BIRDNET_LONGITUDE", validateEnvLongitude},
		{"birdnet.sensitivity", "BIRDNET_SENSITIVITY", validateEnvSensitivity},
		{"birdnet.threshold", "BIRDNET_THRESHOLD", validateEnvUnit},
		{"birdnet.overlap", "BIRDNET_OVERLAP", validateEnvOverlap},
		{"birdnet.threads", "BIRDNET_THREADS", validateEnvNonNegativeInt},

		// Pipeline
		{"pipeline.workers", "BIRDNET_WORKERS", validateEnvNonNegativeInt},
		{"pipeline.max_chunks", "BIRDNET_MAX_CHUNKS", validateEnvNonNegativeInt},
		{"pipeline.max_duration", "BIRDNET_MAX_DURATION", validateEnvDuration},

		// Telemetry
		{"sentry.dsn", "BIRDNET_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvProfile(value string) error {
	if _, ok := profiles[strings.ToLower(value)]; !ok {
		return fmt.Errorf("must be one of %v", Profiles())
	}
	return nil
}

func validateEnvFloatRange(value string, lo, hi float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < lo || f > hi {
		return fmt.Errorf("must be between %g and %g", lo, hi)
	}
	return nil
}

func validateEnvLatitude(value string) error {
	return validateEnvFloatRange(value, -90, 90)
}

func validateEnvLongitude(value string) error {
	return validateEnvFloatRange(value, -180, 180)
}

func validateEnvSensitivity(value string) error {
	return validateEnvFloatRange(value, 0, 1.5)
}

func validateEnvUnit(value string) error {
	return validateEnvFloatRange(value, 0, 1)
}

func validateEnvOverlap(value string) error {
	return validateEnvFloatRange(value, 0, 2.99)
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 90s or 5m")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

// validateEnvPath rejects traversal in model and label paths
func validateEnvPath(value string) error {
	cleanedPath := filepath.Clean(value)
	for part := range strings.SplitSeq(cleanedPath, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("path traversal detected in cleaned path: %s", cleanedPath)
		}
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars(v)
}
