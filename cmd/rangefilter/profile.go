package rangefilter

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// ProfileCommand creates the profile subcommand, which builds the regional
// meta profile once and prints the most plausible species.
func ProfileCommand(settings *conf.Settings) *cobra.Command {
	var top int
	var quiet bool

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Build the regional meta profile and print its top species",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, labels, err := loadMeta(settings)
			if err != nil {
				return err
			}
			defer model.Close()
			if err := validateMeta(model, labels); err != nil {
				return err
			}

			region := birdnet.RegionFromSettings(settings.BirdNET.Region)
			opts := birdnet.BuildOptions{Workers: settings.BirdNET.Region.Workers}
			if !quiet {
				opts.OnProgress = func(done, total int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rgrid rows %d/%d", done, total)
					if done == total {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				}
			}

			profile, err := birdnet.BuildMetaProfile(cmd.Context(), model.MetaScorerFactory(), region, opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Meta profile: %d classes, %d evaluations in %s\n",
				profile.Len(), profile.Evaluations(), profile.BuildTime().Round(time.Millisecond))
			printScores(w, profile.Top(top, labels))
			return nil
		},
	}

	flags := profileCmd.Flags()
	flags.IntVar(&top, "top", 25, "Number of species to print")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	flags.Float64("min-lat", 0, "Southern edge of the region")
	flags.Float64("max-lat", 0, "Northern edge of the region")
	flags.Float64("min-lon", 0, "Western edge of the region")
	flags.Float64("max-lon", 0, "Eastern edge of the region")
	flags.Float64("grid-step", 1, "Grid spacing in degrees")
	for name, key := range map[string]string{
		"min-lat":   "birdnet.region.min_lat",
		"max-lat":   "birdnet.region.max_lat",
		"min-lon":   "birdnet.region.min_lon",
		"max-lon":   "birdnet.region.max_lon",
		"grid-step": "birdnet.region.grid_step",
	} {
		if err := conf.BindFlag(flags, name, key); err != nil {
			panic(err)
		}
	}

	return profileCmd
}

// validateMeta checks the label table against the meta model output layer.
func validateMeta(model *birdnet.Model, labels *birdnet.Labels) error {
	check, err := model.NewTFLiteMetaScorer()
	if err != nil {
		return err
	}
	defer check.Close()
	return birdnet.ValidateLabels(check, labels)
}
