package conf

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// ProfileAnnotation is the cobra command annotation naming the profile the
// command runs when no profile is given explicitly.
const ProfileAnnotation = "birdnet-pipeline/profile"

// configKeyAnnotation marks a command line flag with the settings key it sets.
const configKeyAnnotation = "birdnet-pipeline/config-key"

// BindFlag ties the named flag to a settings key. A bound flag overrides the
// profile, the config file and the environment, but only when it is given
// on the command line.
func BindFlag(flags *pflag.FlagSet, name, key string) error {
	if err := flags.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("flag", name).
			Context("key", key).
			Build()
	}
	return nil
}

// LoadWithFlags is Load with the bound flags of flags layered on top.
func LoadWithFlags(configFile, profile string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}
	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	return finalize(v, profile)
}

// bindFlags registers every annotated flag with viper
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("flag", f.Name).
				Build()
		}
	})
	return bindErr
}
