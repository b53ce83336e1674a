// range.go range command code
package rangefilter

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// Command creates the range parent command
func Command(settings *conf.Settings) *cobra.Command {
	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "Inspect the location and season prior of the meta model",
	}

	rangeCmd.AddCommand(PrintCommand(settings), ProfileCommand(settings))

	return rangeCmd
}

// loadMeta opens the meta model and its label table. The caller closes the
// returned model.
func loadMeta(settings *conf.Settings) (*birdnet.Model, *birdnet.Labels, error) {
	bn := &settings.BirdNET
	if bn.MetaModelPath == "" || bn.LabelPath == "" {
		return nil, nil, errors.Newf("meta model and label paths are required").
			Category(errors.CategoryConfiguration).
			Context("meta_model_path", bn.MetaModelPath).
			Context("label_path", bn.LabelPath).
			Build()
	}
	labels, err := birdnet.LoadLabels(bn.LabelPath)
	if err != nil {
		return nil, nil, err
	}
	model, err := birdnet.LoadModel(bn.MetaModelPath)
	if err != nil {
		return nil, nil, err
	}
	return model, labels, nil
}

// printScores writes one ranked species per line.
func printScores(w io.Writer, scores []birdnet.SpeciesScore) {
	for i, s := range scores {
		name := s.Label.CommonName
		if name == "" {
			name = s.Label.ScientificName
		}
		fmt.Fprintf(w, "%4d  %-32s %-32s %.4f\n", i+1, name, s.Label.ScientificName, s.Score)
	}
}
