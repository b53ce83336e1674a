package birdnet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Label is one entry of the label table.
type Label struct {
	ScientificName string
	CommonName     string
}

// String returns the label in "Scientific_Common" form.
func (l Label) String() string {
	if l.CommonName == "" {
		return l.ScientificName
	}
	return l.ScientificName + "_" + l.CommonName
}

// Labels is the positional class table of a model: entry i names output i.
// It is immutable after loading and safe to share between workers.
type Labels struct {
	entries []Label
	byName  map[string]int // lowercase scientific name -> index
}

// SplitSpeciesName splits "Scientific_Common[_Code]" into its parts. A
// string without an underscore is taken as a scientific name.
func SplitSpeciesName(speciesName string) (scientific, common string) {
	parts := strings.SplitN(strings.TrimSpace(speciesName), "_", 3)
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return parts[0], ""
}

// NewLabels builds a table from raw "Scientific_Common" strings.
func NewLabels(raw []string) *Labels {
	entries := make([]Label, len(raw))
	for i, r := range raw {
		entries[i].ScientificName, entries[i].CommonName = SplitSpeciesName(r)
	}
	return newLabels(entries)
}

func newLabels(entries []Label) *Labels {
	l := &Labels{entries: entries, byName: make(map[string]int, len(entries))}
	for i, e := range entries {
		key := strings.ToLower(e.ScientificName)
		if _, dup := l.byName[key]; !dup {
			l.byName[key] = i
		}
	}
	return l
}

// Len returns the number of classes.
func (l *Labels) Len() int { return len(l.entries) }

// At returns the label of class i.
func (l *Labels) At(i int) Label { return l.entries[i] }

// IndexOf returns the class index of a scientific name, case insensitively.
func (l *Labels) IndexOf(scientificName string) (int, bool) {
	i, ok := l.byName[strings.ToLower(scientificName)]
	return i, ok
}

// LoadLabels reads a label table. The format follows the extension: .csv
// files carry scientific and common name columns, .json files an array of
// "Scientific_Common" strings, anything else one label per line.
func LoadLabels(path string) (*Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryLabelLoad).
			FileContext(path, 0).
			Build()
	}

	var labels *Labels
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		labels, err = parseCSVLabels(bytes.NewReader(data))
	case ".json":
		labels, err = parseJSONLabels(data)
	default:
		labels, err = parseTextLabels(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryLabelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}
	if labels.Len() == 0 {
		return nil, errors.Newf("label file contains no labels").
			Category(errors.CategoryLabelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}

	GetLogger().Debug("labels loaded",
		logger.String("path", path),
		logger.Int("count", labels.Len()))
	return labels, nil
}

func parseTextLabels(r io.Reader) (*Labels, error) {
	var raw []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewLabels(raw), nil
}

// parseCSVLabels accepts "scientific,common" rows with an optional header,
// or single column "Scientific_Common" rows.
func parseCSVLabels(r io.Reader) (*Labels, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	entries := make([]Label, 0, len(records))
	for i, rec := range records {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if i == 0 && isLabelHeader(rec[0]) {
			continue
		}
		if len(rec) == 1 {
			sci, common := SplitSpeciesName(rec[0])
			entries = append(entries, Label{ScientificName: sci, CommonName: common})
			continue
		}
		entries = append(entries, Label{
			ScientificName: strings.TrimSpace(rec[0]),
			CommonName:     strings.TrimSpace(rec[1]),
		})
	}
	return newLabels(entries), nil
}

func isLabelHeader(field string) bool {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "scientific_name", "scientific name", "sci_name", "label", "species":
		return true
	}
	return false
}

func parseJSONLabels(data []byte) (*Labels, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return NewLabels(raw), nil
}

// classCounter is implemented by both scorer kinds.
type classCounter interface {
	NumClasses() int
}

// ValidateLabels checks that the label table matches the scorer output size.
func ValidateLabels(scorer classCounter, labels *Labels) error {
	if labels == nil {
		return errors.Newf("no labels loaded").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	if scorer.NumClasses() != labels.Len() {
		return errors.Newf("label count mismatch: model expects %d classes but label file has %d labels",
			scorer.NumClasses(), labels.Len()).
			Category(errors.CategoryValidation).
			Context("expected_labels", scorer.NumClasses()).
			Context("actual_labels", labels.Len()).
			Build()
	}
	return nil
}
