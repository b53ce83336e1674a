package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/detection"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
)

// Output formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
)

// Observation is one chunk level detection placed on the file timeline.
type Observation struct {
	birdnet.Detection
	Begin time.Duration `json:"begin"`
	End   time.Duration `json:"end"`
}

// observations flattens ordered chunk results into a timeline.
func observations(results []ChunkResult) []Observation {
	var out []Observation
	for i := range results {
		r := &results[i]
		for _, d := range r.Detections {
			out = append(out, Observation{Detection: d, Begin: r.Offset, End: r.End})
		}
	}
	return out
}

// WriteNotesTable writes observations as a Raven selection table. The
// frequency columns carry the analysis band.
func WriteNotesTable(w io.Writer, obs []Observation, sourceFile string, lowHz, highHz float64) error {
	header := "Selection\tView\tChannel\tBegin File\tBegin Time (s)\tEnd Time (s)\tLow Freq (Hz)\tHigh Freq (Hz)\tScientific Name\tCommon Name\tConfidence\n"
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	begin := filepath.Base(sourceFile)
	for i := range obs {
		o := &obs[i]
		line := fmt.Sprintf("%d\tSpectrogram 1\t1\t%s\t%.1f\t%.1f\t%.0f\t%.0f\t%s\t%s\t%.4f\n",
			i+1, begin, o.Begin.Seconds(), o.End.Seconds(), lowHz, highHz,
			o.ScientificName, o.CommonName, o.Confidence)
		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("failed to write note: %w", err)
		}
	}
	return nil
}

// WriteNotesCSV writes observations as CSV with a header row.
func WriteNotesCSV(w io.Writer, obs []Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Start (s)", "End (s)", "Scientific name", "Common name", "Confidence"}); err != nil {
		return fmt.Errorf("failed to write header to CSV: %w", err)
	}
	for i := range obs {
		o := &obs[i]
		record := []string{
			strconv.FormatFloat(o.Begin.Seconds(), 'f', 1, 64),
			strconv.FormatFloat(o.End.Seconds(), 'f', 1, 64),
			o.ScientificName,
			o.CommonName,
			strconv.FormatFloat(float64(o.Confidence), 'f', 4, 32),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write note to CSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00AA00"))
	speciesStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// WriteConfirmed writes a human readable list of confirmed species.
func WriteConfirmed(w io.Writer, title string, confirmed []detection.ConfirmedDetection) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d)", title, len(confirmed))))
	b.WriteByte('\n')
	if len(confirmed) == 0 {
		b.WriteString(dimStyle.Render("  no confirmed species"))
		b.WriteByte('\n')
	}
	for i := range confirmed {
		c := &confirmed[i]
		name := c.CommonName
		if name == "" {
			name = c.ScientificName
		}
		fmt.Fprintf(&b, "  %s %s %5.1f%% (%d chunks)\n",
			speciesStyle.Render(fmt.Sprintf("%-32s", name)),
			dimStyle.Render(fmt.Sprintf("%-32s", c.ScientificName)),
			c.Confidence*100, c.Count)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// formatLevel renders an input level line for the periodic live report.
func formatLevel(l myaudio.AudioLevel) string {
	line := fmt.Sprintf("  input level %3d/100 (%.1f dBFS)", l.Level, l.DB)
	if l.Clipping {
		line += " clipping"
	}
	return dimStyle.Render(line) + "\n"
}

// outputPath resolves where results of inputPath go. An empty configured path
// means stdout; a directory receives a file named after the input.
func outputPath(out *conf.OutputSettings, inputPath string) string {
	if out.Path == "" {
		return ""
	}
	path := out.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)))
	}
	ext := ".txt"
	if out.Format == FormatCSV {
		ext = ".csv"
	}
	if !strings.HasSuffix(path, ext) {
		path += ext
	}
	return path
}

// writeResults writes the report observations in the configured format and
// returns the file written, empty for stdout.
func writeResults(settings *conf.Settings, report *FileReport, stdout io.Writer) (string, error) {
	path := outputPath(&settings.Output, report.Path)
	w := stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return "", errors.New(err).
				Category(errors.CategoryFileIO).
				Context("operation", "create_output").
				FileContext(path, 0).
				Build()
		}
		defer func() { _ = file.Close() }()
		w = file
	}

	var err error
	switch settings.Output.Format {
	case FormatCSV:
		err = WriteNotesCSV(w, report.Observations)
	case FormatTable, "":
		err = WriteNotesTable(w, report.Observations, report.Path,
			settings.Audio.Bandpass.Low, settings.Audio.Bandpass.High)
	default:
		return "", errors.Newf("unknown output format %q", settings.Output.Format).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_results").
			Build()
	}
	return path, nil
}
