package detection

import (
	"strings"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
)

// defaultNonBirdClasses are labels the audio model emits for sounds that are
// not bird vocalizations. Matched case-insensitively on either name.
var defaultNonBirdClasses = []string{
	"Engine",
	"Environmental",
	"Fireworks",
	"Gun",
	"Human non-vocal",
	"Human vocal",
	"Human whistle",
	"Noise",
	"Power tools",
	"Siren",
	"Dog",
	"Cat",
}

// NonBirdFilter recognizes non-bird labels. It is read only after
// construction.
type NonBirdFilter struct {
	names map[string]struct{}
}

// NewNonBirdFilter builds a filter from the default set plus extra labels,
// typically insects and amphibians of the model in use.
func NewNonBirdFilter(extra ...string) *NonBirdFilter {
	f := &NonBirdFilter{names: make(map[string]struct{}, len(defaultNonBirdClasses)+len(extra))}
	for _, name := range defaultNonBirdClasses {
		f.add(name)
	}
	for _, name := range extra {
		f.add(name)
	}
	return f
}

func (f *NonBirdFilter) add(name string) {
	if key := speciesKey(name); key != "" {
		f.names[key] = struct{}{}
	}
}

// IsNonBird reports whether d names a non-bird class.
func (f *NonBirdFilter) IsNonBird(d *birdnet.Detection) bool {
	if _, ok := f.names[speciesKey(d.ScientificName)]; ok {
		return true
	}
	_, ok := f.names[speciesKey(d.CommonName)]
	return ok
}

// Len returns the number of names in the filter.
func (f *NonBirdFilter) Len() int { return len(f.names) }

func speciesKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
