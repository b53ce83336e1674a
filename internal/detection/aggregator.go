package detection

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Mode selects how the aggregator keeps history and scores confirmed species.
type Mode int

const (
	// ModeLive keeps a bounded window per species and reports the mean of
	// its three best scores.
	ModeLive Mode = iota
	// ModeFile keeps the whole session and reports the best score seen.
	ModeFile
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeFile:
		return "file"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Aggregator defaults.
const (
	DefaultWindowSize        = 5
	DefaultConfirmationCount = 2
	DefaultThreshold         = 0.5

	representativeTopN = 3
)

// ConfirmedDetection is a species with enough qualifying chunks.
type ConfirmedDetection struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Confidence     float32 `json:"confidence"` // representative confidence for the mode
	Count          int     `json:"count"`      // qualifying window slots
	Index          int     `json:"index"`      // class index in the label table
}

type speciesWindow struct {
	scientificName string
	commonName     string
	index          int
	scores         []float32
	best           float32
}

func (w *speciesWindow) allZero() bool {
	for _, s := range w.scores {
		if s != 0 {
			return false
		}
	}
	return true
}

// Aggregator tracks per-species score windows across chunks. It is safe for
// concurrent use.
type Aggregator struct {
	mu           sync.Mutex
	mode         Mode
	windowSize   int
	confirmCount int
	threshold    float32
	overrides    map[string]float32
	nonBird      *NonBirdFilter
	species      map[string]*speciesWindow
	chunks       int
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWindowSize sets the live window length in chunks. File mode ignores it.
func WithWindowSize(n int) AggregatorOption {
	return func(a *Aggregator) { a.windowSize = n }
}

// WithConfirmationCount sets how many qualifying slots confirm a species.
func WithConfirmationCount(n int) AggregatorOption {
	return func(a *Aggregator) { a.confirmCount = n }
}

// WithDefaultThreshold sets the slot threshold for species without an override.
func WithDefaultThreshold(t float32) AggregatorOption {
	return func(a *Aggregator) { a.threshold = t }
}

// WithNonBirdClasses adds labels that never enter a window.
func WithNonBirdClasses(names ...string) AggregatorOption {
	return func(a *Aggregator) { a.nonBird = NewNonBirdFilter(names...) }
}

// WithThresholdOverrides sets per-species slot thresholds keyed by scientific
// or common name.
func WithThresholdOverrides(overrides map[string]float64) AggregatorOption {
	return func(a *Aggregator) {
		for species, t := range overrides {
			a.overrides[speciesKey(species)] = float32(t)
		}
	}
}

// AggregatorOptionsFromSettings maps aggregator settings onto options.
func AggregatorOptionsFromSettings(s *conf.AggregatorSettings) []AggregatorOption {
	return []AggregatorOption{
		WithWindowSize(s.Window),
		WithConfirmationCount(s.ConfirmCount),
		WithDefaultThreshold(float32(s.Threshold)),
		WithNonBirdClasses(s.NonBird...),
		WithThresholdOverrides(s.SpeciesThresholds),
	}
}

// NewAggregator returns an empty aggregator. The mode cannot change later.
func NewAggregator(mode Mode, opts ...AggregatorOption) (*Aggregator, error) {
	a := &Aggregator{
		mode:         mode,
		windowSize:   DefaultWindowSize,
		confirmCount: DefaultConfirmationCount,
		threshold:    DefaultThreshold,
		overrides:    make(map[string]float32),
		species:      make(map[string]*speciesWindow),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.nonBird == nil {
		a.nonBird = NewNonBirdFilter()
	}

	switch {
	case mode != ModeLive && mode != ModeFile:
		return nil, fmt.Errorf("unknown aggregator mode %d", int(mode))
	case a.windowSize < 1:
		return nil, fmt.Errorf("window size must be at least 1, got %d", a.windowSize)
	case a.confirmCount < 1:
		return nil, fmt.Errorf("confirmation count must be at least 1, got %d", a.confirmCount)
	case a.threshold < 0 || a.threshold > 1:
		return nil, fmt.Errorf("threshold must be in [0, 1], got %g", a.threshold)
	}
	if mode == ModeLive && a.confirmCount > a.windowSize {
		GetLogger().Warn("confirmation count exceeds window size, no species can be confirmed",
			logger.Int("confirm_count", a.confirmCount),
			logger.Int("window", a.windowSize))
	}
	return a, nil
}

// NonBird returns the non-bird label set the aggregator ignores.
func (a *Aggregator) NonBird() *NonBirdFilter { return a.nonBird }

// Mode returns the operating mode.
func (a *Aggregator) Mode() Mode { return a.mode }

// SetThresholdOverride sets the slot threshold of one species, by scientific
// or common name.
func (a *Aggregator) SetThresholdOverride(species string, threshold float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overrides[speciesKey(species)] = threshold
}

// AddChunkResults records one chunk. A nil or empty slice is a chunk with no
// detections and still advances every window.
func (a *Aggregator) AddChunkResults(dets []birdnet.Detection) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := make(map[string]*birdnet.Detection, len(dets))
	for i := range dets {
		d := &dets[i]
		if a.nonBird.IsNonBird(d) {
			continue
		}
		key := detectionKey(d)
		if key == "" {
			continue
		}
		if prev, ok := current[key]; !ok || d.Confidence > prev.Confidence {
			current[key] = d
		}
	}

	for key, w := range a.species {
		var score float32
		if d, ok := current[key]; ok {
			score = d.Confidence
			delete(current, key)
		}
		a.push(w, score)
		if a.mode == ModeLive && w.allZero() {
			delete(a.species, key)
		}
	}

	for key, d := range current {
		if d.Confidence <= 0 {
			continue
		}
		w := &speciesWindow{
			scientificName: d.ScientificName,
			commonName:     d.CommonName,
			index:          d.Index,
		}
		a.push(w, d.Confidence)
		a.species[key] = w
	}
	a.chunks++
}

func (a *Aggregator) push(w *speciesWindow, score float32) {
	w.scores = append(w.scores, score)
	w.best = max(w.best, score)
	if a.mode == ModeLive && len(w.scores) > a.windowSize {
		n := copy(w.scores, w.scores[len(w.scores)-a.windowSize:])
		w.scores = w.scores[:n]
	}
}

// ConfirmedDetections lists species whose window holds at least the
// confirmation count of slots at or above their threshold, highest
// confidence first.
func (a *Aggregator) ConfirmedDetections() []ConfirmedDetection {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []ConfirmedDetection
	for _, w := range a.species {
		threshold := a.thresholdFor(w)
		count := 0
		for _, s := range w.scores {
			if s >= threshold {
				count++
			}
		}
		if count < a.confirmCount {
			continue
		}
		out = append(out, ConfirmedDetection{
			ScientificName: w.scientificName,
			CommonName:     w.commonName,
			Confidence:     a.representative(w),
			Count:          count,
			Index:          w.index,
		})
	}

	slices.SortFunc(out, func(x, y ConfirmedDetection) int {
		if c := cmp.Compare(y.Confidence, x.Confidence); c != 0 {
			return c
		}
		return strings.Compare(x.ScientificName, y.ScientificName)
	})
	return out
}

func (a *Aggregator) thresholdFor(w *speciesWindow) float32 {
	if t, ok := a.overrides[speciesKey(w.scientificName)]; ok {
		return t
	}
	if t, ok := a.overrides[speciesKey(w.commonName)]; ok {
		return t
	}
	return a.threshold
}

// representative is the window maximum in file mode and the mean of the
// three highest slots in live mode.
func (a *Aggregator) representative(w *speciesWindow) float32 {
	if a.mode == ModeFile {
		return w.best
	}
	top := make([]float64, len(w.scores))
	for i, s := range w.scores {
		top[i] = float64(s)
	}
	slices.SortFunc(top, func(x, y float64) int { return cmp.Compare(y, x) })
	top = top[:min(len(top), representativeTopN)]
	return float32(stat.Mean(top, nil))
}

// Tracked returns the number of species with a live window.
func (a *Aggregator) Tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.species)
}

// Chunks returns the number of chunks recorded since the last reset.
func (a *Aggregator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

// Reset drops all windows. Threshold overrides are kept.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.species)
	a.chunks = 0
}

func detectionKey(d *birdnet.Detection) string {
	if key := speciesKey(d.ScientificName); key != "" {
		return key
	}
	return speciesKey(d.CommonName)
}
