package birdnet

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Classifier defaults.
const (
	DefaultThreshold   = 0.1
	DefaultTopK        = 10
	DefaultSensitivity = 1.0
)

// Classifier turns a chunk into a ranked, thresholded detection list. It owns
// its AudioScorer and, like the scorer, is meant for one goroutine. The
// labels and MetaProfile it references are shared read only.
type Classifier struct {
	scorer      AudioScorer
	labels      *Labels
	profile     *MetaProfile
	meta        *liveMeta
	tiers       AlphaTiers
	threshold   float32
	topK        int
	sensitivity float64
	log         logger.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithMetaProfile blends scores with a precomputed regional ceiling. It takes
// precedence over a live meta scorer.
func WithMetaProfile(p *MetaProfile) ClassifierOption {
	return func(c *Classifier) { c.profile = p }
}

// WithMetaScorer enables live meta scoring for calls that pass a
// LocationContext. The classifier takes ownership of the scorer.
func WithMetaScorer(s MetaScorer) ClassifierOption {
	return func(c *Classifier) {
		if s != nil {
			c.meta = newLiveMeta(s)
		}
	}
}

// WithAlphaTiers replaces the blend tier table.
func WithAlphaTiers(t AlphaTiers) ClassifierOption {
	return func(c *Classifier) { c.tiers = t }
}

// WithThreshold sets the minimum reported confidence.
func WithThreshold(threshold float32) ClassifierOption {
	return func(c *Classifier) { c.threshold = threshold }
}

// WithTopK caps the number of detections per chunk.
func WithTopK(k int) ClassifierOption {
	return func(c *Classifier) { c.topK = k }
}

// WithSensitivity sets the sigmoid slope.
func WithSensitivity(s float64) ClassifierOption {
	return func(c *Classifier) { c.sensitivity = s }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) ClassifierOption {
	return func(c *Classifier) { c.log = l }
}

// NewClassifier validates the label table against the scorer and applies opts.
func NewClassifier(scorer AudioScorer, labels *Labels, opts ...ClassifierOption) (*Classifier, error) {
	if scorer == nil {
		return nil, errors.Newf("classifier requires an audio scorer").
			Category(errors.CategoryModelInit).
			Build()
	}
	if err := ValidateLabels(scorer, labels); err != nil {
		return nil, err
	}

	c := &Classifier{
		scorer:      scorer,
		labels:      labels,
		tiers:       DefaultAlphaTiers(),
		threshold:   DefaultThreshold,
		topK:        DefaultTopK,
		sensitivity: DefaultSensitivity,
		log:         GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.tiers.Validate(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "new_classifier").
			Build()
	}
	if c.topK < 1 || c.threshold < 0 || c.threshold > 1 || c.sensitivity <= 0 {
		return nil, errors.Newf("invalid classifier parameters: top_k=%d threshold=%g sensitivity=%g",
			c.topK, c.threshold, c.sensitivity).
			Category(errors.CategoryValidation).
			Build()
	}
	if c.profile != nil && c.profile.Len() != labels.Len() {
		return nil, errors.Newf("meta profile has %d classes, labels have %d", c.profile.Len(), labels.Len()).
			Category(errors.CategoryMetaProfile).
			Build()
	}
	if c.meta != nil && c.meta.scorer.NumClasses() != labels.Len() {
		return nil, errors.Newf("meta model has %d classes, labels have %d", c.meta.scorer.NumClasses(), labels.Len()).
			Category(errors.CategoryValidation).
			Build()
	}
	return c, nil
}

// InputSize returns the required chunk length.
func (c *Classifier) InputSize() int { return c.scorer.InputSize() }

// Labels returns the shared label table.
func (c *Classifier) Labels() *Labels { return c.labels }

// Classify scores one chunk. loc may be nil; without a MetaProfile or a
// location the sigmoid scores are used unchanged. A chunk of the wrong
// length is a validation error.
func (c *Classifier) Classify(chunk []float32, loc *LocationContext) ([]Detection, error) {
	if len(chunk) != c.scorer.InputSize() {
		return nil, errors.Newf("chunk has %d samples, classifier expects %d", len(chunk), c.scorer.InputSize()).
			Category(errors.CategoryValidation).
			Context("operation", "classify").
			Build()
	}

	start := time.Now()
	raw, err := c.scorer.Score(chunk)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioAnalysis).
			Timing("audio-inference", time.Since(start)).
			Build()
	}
	if len(raw) != c.labels.Len() {
		return nil, errors.Newf("scorer returned %d scores for %d labels", len(raw), c.labels.Len()).
			Category(errors.CategoryAudioAnalysis).
			Build()
	}

	scores := applySigmoid(raw, c.sensitivity)

	metaScores, err := c.metaScores(loc)
	if err != nil {
		return nil, err
	}
	if metaScores != nil {
		for i := range scores {
			scores[i] = c.tiers.Blend(scores[i], metaScores[i])
		}
	}

	dets := BuildDetections(scores, c.labels, c.threshold, c.topK)
	c.log.Trace("chunk classified",
		logger.Int("detections", len(dets)),
		logger.Bool("meta", metaScores != nil),
		logger.Duration("duration", time.Since(start)))
	return dets, nil
}

// metaScores picks the meta source: the profile when present, else live
// scoring for loc, else none.
func (c *Classifier) metaScores(loc *LocationContext) ([]float32, error) {
	if c.profile != nil {
		return c.profile.scores, nil
	}
	if loc == nil || c.meta == nil {
		return nil, nil
	}
	s, err := c.meta.scores(loc)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioAnalysis).
			Context("operation", "live_meta").
			Build()
	}
	return s, nil
}

// Close releases the scorers owned by the classifier.
func (c *Classifier) Close() {
	c.scorer.Close()
	if c.meta != nil {
		c.meta.scorer.Close()
	}
}

func sigmoid(x, sensitivity float64) float64 {
	return 1.0 / (1.0 + math.Exp(-sensitivity*x))
}

func applySigmoid(raw []float32, sensitivity float64) []float32 {
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(sigmoid(float64(v), sensitivity))
	}
	return out
}

// BuildDetections keeps scores at or above threshold, sorts them by
// descending confidence with ties in class order, and returns at most topK.
// Names come from the label at the same position.
func BuildDetections(scores []float32, labels *Labels, threshold float32, topK int) []Detection {
	if topK <= 0 {
		return nil
	}
	n := min(len(scores), labels.Len())

	var candidates []int
	for i := range n {
		if scores[i] >= threshold {
			candidates = append(candidates, i)
		}
	}
	slices.SortStableFunc(candidates, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})
	candidates = candidates[:min(len(candidates), topK)]

	dets := make([]Detection, len(candidates))
	for k, i := range candidates {
		label := labels.At(i)
		dets[k] = Detection{
			ScientificName: label.ScientificName,
			CommonName:     label.CommonName,
			Confidence:     scores[i],
			Index:          i,
		}
	}
	return dets
}
