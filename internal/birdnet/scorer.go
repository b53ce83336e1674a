package birdnet

// AudioScorer runs the audio model on one chunk. Implementations hold an
// inference context that must not be used from more than one goroutine.
type AudioScorer interface {
	// NumClasses returns the length of every score slice.
	NumClasses() int
	// InputSize returns the exact chunk length the model accepts.
	InputSize() int
	// Score returns one raw, unbounded score per class.
	Score(chunk []float32) ([]float32, error)
	Close()
}

// MetaScorer runs the geo-temporal model. Scores are plausibilities in [0, 1].
// Implementations are not safe for concurrent use.
type MetaScorer interface {
	NumClasses() int
	Score(latitude, longitude float64, week int) ([]float32, error)
	Close()
}

// MetaScorerFactory creates a private MetaScorer for one goroutine.
type MetaScorerFactory func() (MetaScorer, error)
