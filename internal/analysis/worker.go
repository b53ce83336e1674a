package analysis

import (
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
	"github.com/tphakala/birdnet-pipeline/internal/observability/metrics"
)

// ChunkResult is the outcome of one chunk, tagged with its position in the
// stream. A rejected chunk carries no detections.
type ChunkResult struct {
	Index      int
	Offset     time.Duration
	End        time.Duration
	Reason     myaudio.RejectReason
	RMS        float64 // after normalization, zero when rejected
	Peak       float64 // after normalization, zero when rejected
	Detections []birdnet.Detection
}

// Accepted reports whether the chunk passed the pre-filter.
func (r *ChunkResult) Accepted() bool { return r.Reason == myaudio.Accepted }

// Worker analyzes chunks. A Worker is owned by exactly one goroutine.
type Worker interface {
	Process(chunk myaudio.Chunk) (ChunkResult, error)
	Close()
}

// WorkerFactory creates one private Worker. The pipeline calls it once per
// worker goroutine.
type WorkerFactory func() (Worker, error)

// ChunkAnalyzer is the standard Worker: pre-filter then classify.
type ChunkAnalyzer struct {
	processor  *myaudio.ChunkProcessor
	classifier *birdnet.Classifier
	location   *birdnet.LocationContext
	recorder   metrics.Recorder
}

// NewChunkAnalyzer returns a worker owning processor and classifier. A nil
// location disables live meta blending; a nil recorder records nothing.
func NewChunkAnalyzer(processor *myaudio.ChunkProcessor, classifier *birdnet.Classifier, location *birdnet.LocationContext, recorder metrics.Recorder) *ChunkAnalyzer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &ChunkAnalyzer{
		processor:  processor,
		classifier: classifier,
		location:   location,
		recorder:   recorder,
	}
}

// Process runs the pre-filter and, for accepted chunks, the classifier.
// Content rejections are results, not errors.
func (a *ChunkAnalyzer) Process(chunk myaudio.Chunk) (ChunkResult, error) {
	res := ChunkResult{Index: chunk.Index, Offset: chunk.Offset, End: chunk.End()}

	processed, reason := a.processor.ProcessWithReason(chunk.Samples)
	res.Reason = reason
	if reason != myaudio.Accepted {
		a.recorder.RecordOperation(metrics.OpChunk, reason.String())
		return res, nil
	}
	a.recorder.RecordOperation(metrics.OpChunk, metrics.StatusAccepted)
	res.RMS, res.Peak = processed.RMS, processed.Peak

	start := time.Now()
	dets, err := a.classifier.Classify(processed.Samples, a.location)
	a.recorder.RecordDuration(metrics.OpClassify, time.Since(start).Seconds())
	if err != nil {
		a.recorder.RecordError(metrics.OpClassify, errorType(err))
		return res, errors.New(err).
			Category(errors.CategoryAudioAnalysis).
			Context("operation", "classify_chunk").
			Context("chunk_index", chunk.Index).
			Build()
	}
	a.recorder.RecordOperation(metrics.OpClassify, metrics.StatusSuccess)
	res.Detections = dets
	return res, nil
}

// Close releases the classifier and its scorers.
func (a *ChunkAnalyzer) Close() {
	a.classifier.Close()
}

// errorType returns the category of an enhanced error for metric labels.
func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}

var _ Worker = (*ChunkAnalyzer)(nil)
