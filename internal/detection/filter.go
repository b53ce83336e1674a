package detection

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
)

// DefaultAnchorThreshold is the chunk confidence that bypasses confirmation.
const DefaultAnchorThreshold = 0.75

// FamilyResolver maps a scientific name to its taxonomic family group.
// *birdnet.Taxonomy implements it.
type FamilyResolver interface {
	FamilyOf(scientificName string) string
}

// Source tells which path let a detection through the final filter.
type Source int

const (
	SourceAnchor Source = iota
	SourceConfirmed
)

func (s Source) String() string {
	switch s {
	case SourceAnchor:
		return "anchor"
	case SourceConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// FinalDetection is a detection surfaced to the consumer for one chunk.
type FinalDetection struct {
	birdnet.Detection
	Family string `json:"family"`
	Source Source `json:"source"`
}

// FinalFilter decides what surfaces for each live chunk. It holds no state
// between chunks and is safe for concurrent use.
type FinalFilter struct {
	families FamilyResolver
	nonBird  *NonBirdFilter
	anchor   float32
}

// NewFinalFilter returns a filter anchoring at the given confidence. A nil
// resolver groups species by genus. Chunk detections matching nonBird never
// anchor; a nil nonBird uses the default set.
func NewFinalFilter(families FamilyResolver, anchor float32, nonBird *NonBirdFilter) (*FinalFilter, error) {
	if anchor <= 0 || anchor > 1 {
		return nil, fmt.Errorf("anchor threshold must be in (0, 1], got %g", anchor)
	}
	if families == nil {
		families = birdnet.NewGenusTaxonomy()
	}
	if nonBird == nil {
		nonBird = NewNonBirdFilter()
	}
	return &FinalFilter{families: families, nonBird: nonBird, anchor: anchor}, nil
}

// Anchor returns the anchor threshold.
func (f *FinalFilter) Anchor() float32 { return f.anchor }

// Apply combines the chunk detections with the aggregator's confirmed list:
//   - bird detections at or above the anchor pass and anchor their family
//   - confirmed species pass with their representative confidence unless
//     their family is anchored
//   - one detection per family survives, the most confident
//
// The result is sorted by descending confidence.
func (f *FinalFilter) Apply(chunk []birdnet.Detection, confirmed []ConfirmedDetection) []FinalDetection {
	anchoredFamilies := make(map[string]struct{})
	anchoredSpecies := make(map[string]struct{})
	var passed []FinalDetection

	for i := range chunk {
		d := &chunk[i]
		if d.Confidence < f.anchor || f.nonBird.IsNonBird(d) {
			continue
		}
		family := f.families.FamilyOf(d.ScientificName)
		anchoredFamilies[family] = struct{}{}
		anchoredSpecies[detectionKey(d)] = struct{}{}
		passed = append(passed, FinalDetection{Detection: *d, Family: family, Source: SourceAnchor})
	}

	for i := range confirmed {
		c := &confirmed[i]
		det := birdnet.Detection{
			ScientificName: c.ScientificName,
			CommonName:     c.CommonName,
			Confidence:     c.Confidence,
			Index:          c.Index,
		}
		if _, ok := anchoredSpecies[detectionKey(&det)]; ok {
			continue
		}
		family := f.families.FamilyOf(c.ScientificName)
		if _, ok := anchoredFamilies[family]; ok {
			continue
		}
		passed = append(passed, FinalDetection{Detection: det, Family: family, Source: SourceConfirmed})
	}

	return dedupFamilies(passed)
}

// dedupFamilies keeps the most confident detection of each family, highest
// confidence first. Equal confidence favors an anchor, then name order.
func dedupFamilies(passed []FinalDetection) []FinalDetection {
	slices.SortStableFunc(passed, func(x, y FinalDetection) int {
		if c := cmp.Compare(y.Confidence, x.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Source, y.Source); c != 0 {
			return c
		}
		return strings.Compare(x.ScientificName, y.ScientificName)
	})

	seen := make(map[string]struct{}, len(passed))
	out := passed[:0]
	for _, d := range passed {
		if _, ok := seen[d.Family]; ok {
			continue
		}
		seen[d.Family] = struct{}{}
		out = append(out, d)
	}
	return out
}
