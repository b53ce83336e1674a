package rangefilter

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// dateLayout is ISO 8601 (YYYY-MM-DD)
const dateLayout = "2006-01-02"

// PrintCommand creates the print subcommand
func PrintCommand(settings *conf.Settings) *cobra.Command {
	var dateStr, toStr string
	var weekNum int
	var threshold float64

	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the species the meta model expects at the configured location",
		RunE: func(cmd *cobra.Command, args []string) error {
			weekFrom, weekTo, err := resolveWeeks(dateStr, toStr, weekNum, time.Now())
			if err != nil {
				return err
			}
			if !settings.BirdNET.HasLocation() {
				return errors.Newf("latitude and longitude are required").
					Category(errors.CategoryConfiguration).
					Build()
			}

			model, labels, err := loadMeta(settings)
			if err != nil {
				return err
			}
			defer model.Close()
			scorer, err := model.NewTFLiteMetaScorer()
			if err != nil {
				return err
			}
			defer scorer.Close()

			loc := &birdnet.LocationContext{
				Latitude:  settings.BirdNET.Latitude,
				Longitude: settings.BirdNET.Longitude,
				WeekFrom:  weekFrom,
				WeekTo:    weekTo,
			}
			scores, err := speciesAt(scorer, labels, loc, float32(threshold))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Species at %.4f, %.4f in %s with score >= %.2f: %d\n",
				loc.Latitude, loc.Longitude, weekSpan(weekFrom, weekTo), threshold, len(scores))
			printScores(w, scores)
			return nil
		},
	}

	// Define flags for the print subcommand
	printCmd.Flags().StringVar(&dateStr, "date", "", "Date for the range filter in ISO 8601 format (YYYY-MM-DD)")
	printCmd.Flags().StringVar(&toStr, "to", "", "Last date of a span starting at --date or today, scored as the maximum over its weeks")
	printCmd.Flags().IntVar(&weekNum, "week", 0, "Week number for the range filter, values 1 to 48")
	printCmd.Flags().Float64Var(&threshold, "range-threshold", 0.01, "Minimum meta score of a listed species")

	return printCmd
}

// resolveWeek picks the meta model week from an explicit week, a date, or now.
func resolveWeek(dateStr string, weekNum int, now time.Time) (int, error) {
	if weekNum != 0 {
		if weekNum < 1 || weekNum > 48 {
			return 0, errors.Newf("invalid week number: %d, valid range is 1 to 48", weekNum).
				Category(errors.CategoryValidation).
				Build()
		}
		return weekNum, nil
	}
	if dateStr == "" {
		return birdnet.WeekForDate(now), nil
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return 0, err
	}
	return birdnet.WeekForDate(date), nil
}

// resolveWeeks extends resolveWeek with an optional end date. A span that
// runs past the end of the year wraps, so from may exceed to.
func resolveWeeks(dateStr, toStr string, weekNum int, now time.Time) (from, to int, err error) {
	if toStr == "" {
		week, werr := resolveWeek(dateStr, weekNum, now)
		return week, week, werr
	}
	if weekNum != 0 {
		return 0, 0, errors.Newf("--to cannot be combined with --week").
			Category(errors.CategoryValidation).
			Build()
	}
	start := now
	if dateStr != "" {
		if start, err = parseDate(dateStr); err != nil {
			return 0, 0, err
		}
	}
	end, err := parseDate(toStr)
	if err != nil {
		return 0, 0, err
	}
	from, to = birdnet.WeekRange(start, end)
	return from, to, nil
}

func parseDate(s string) (time.Time, error) {
	date, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.New(err).
			Category(errors.CategoryValidation).
			Context("date", s).
			Build()
	}
	return date, nil
}

func weekSpan(from, to int) string {
	if from == to {
		return fmt.Sprintf("week %d", from)
	}
	return fmt.Sprintf("weeks %d-%d", from, to)
}

// speciesAt returns the species whose meta score at loc is at least
// threshold, highest first. A week span scores each species by its maximum
// over the span.
func speciesAt(scorer birdnet.MetaScorer, labels *birdnet.Labels, loc *birdnet.LocationContext, threshold float32) ([]birdnet.SpeciesScore, error) {
	if err := birdnet.ValidateLabels(scorer, labels); err != nil {
		return nil, err
	}
	if err := loc.Validate(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "range_print").
			Build()
	}
	var scores []float32
	for _, week := range loc.Weeks() {
		s, err := scorer.Score(loc.Latitude, loc.Longitude, week)
		if err != nil {
			return nil, err
		}
		if scores == nil {
			scores = append([]float32(nil), s...)
			continue
		}
		for i := range scores {
			scores[i] = max(scores[i], s[i])
		}
	}
	var out []birdnet.SpeciesScore
	for i, s := range scores {
		if s >= threshold {
			out = append(out, birdnet.SpeciesScore{Index: i, Label: labels.At(i), Score: s})
		}
	}
	slices.SortStableFunc(out, func(a, b birdnet.SpeciesScore) int { return cmp.Compare(b.Score, a.Score) })
	return out, nil
}
