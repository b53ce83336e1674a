package analysis

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
	"github.com/tphakala/birdnet-pipeline/internal/observability/metrics"
)

// Pipeline defaults.
const (
	DefaultQueueSize = 4
	maxWorkers       = 8
)

// ChunkSource pushes chunks in stream order to emit until the stream ends,
// ctx is cancelled or emit returns an error. An emit error of
// myaudio.ErrStopReading asks the source to stop cleanly.
type ChunkSource func(ctx context.Context, emit myaudio.ChunkCallback) error

// FileSource decodes a WAV or FLAC file.
func FileSource(path string, overlap float64) ChunkSource {
	return func(ctx context.Context, emit myaudio.ChunkCallback) error {
		return myaudio.ReadAudioFile(ctx, path, overlap, emit)
	}
}

// StopReason tells why the producer stopped emitting chunks.
type StopReason int32

const (
	StopComplete StopReason = iota // source exhausted
	StopChunkCap                   // chunk cap reached
	StopTimeCap                    // wall time cap reached
	StopEarly                      // consumer asked to stop
)

func (r StopReason) String() string {
	switch r {
	case StopComplete:
		return "complete"
	case StopChunkCap:
		return "chunk_cap"
	case StopTimeCap:
		return "time_cap"
	case StopEarly:
		return "early_stop"
	default:
		return fmt.Sprintf("stop(%d)", int(r))
	}
}

// PipelineConfig sizes the pipeline and sets its caps. Zero caps disable them.
type PipelineConfig struct {
	Workers     int           // 0 selects DefaultWorkers
	QueueSize   int           // capacity of both bounded channels, 0 selects DefaultQueueSize
	MaxChunks   int           // chunks emitted before a clean stop
	MaxDuration time.Duration // wall time before a clean stop
}

// PipelineConfigFromSettings maps pipeline settings onto a config.
func PipelineConfigFromSettings(s *conf.PipelineSettings) PipelineConfig {
	return PipelineConfig{
		Workers:     s.Workers,
		QueueSize:   s.QueueSize,
		MaxChunks:   s.MaxChunks,
		MaxDuration: s.MaxDuration,
	}
}

// DefaultWorkers returns the worker count used when none is configured: the
// physical core count, between 1 and 8.
func DefaultWorkers() int {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return clampInt(n, 1, maxWorkers)
}

// Summary describes one pipeline run. Results are ordered by chunk index.
type Summary struct {
	Results    []ChunkResult
	Emitted    int
	Accepted   int
	Rejected   map[myaudio.RejectReason]int
	StopReason StopReason
	Duration   time.Duration
	Workers    int
}

// Detections returns the number of chunk level detections in the summary.
func (s *Summary) Detections() int {
	n := 0
	for i := range s.Results {
		n += len(s.Results[i].Detections)
	}
	return n
}

// Pipeline runs one producer, a pool of workers and a collector connected by
// bounded channels.
type Pipeline struct {
	cfg      PipelineConfig
	recorder metrics.Recorder
	now      func() time.Time
	discard  bool // results go to onResult only
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithDiscardResults leaves Summary.Results empty, for unbounded streams
// whose results are consumed through onResult.
func WithDiscardResults() PipelineOption {
	return func(p *Pipeline) { p.discard = true }
}

// NewPipeline validates cfg and fills in defaults.
func NewPipeline(cfg PipelineConfig, opts ...PipelineOption) (*Pipeline, error) {
	if cfg.Workers < 0 || cfg.QueueSize < 0 || cfg.MaxChunks < 0 || cfg.MaxDuration < 0 {
		return nil, errors.Newf("invalid pipeline config %+v", cfg).
			Category(errors.CategoryValidation).
			Context("operation", "new_pipeline").
			Build()
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	p := &Pipeline{cfg: cfg, recorder: metrics.NoopRecorder{}, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() PipelineConfig { return p.cfg }

// Run drives source through the worker pool. onResult, which may be nil, is
// called from the collector for every result in completion order; returning
// false stops the producer before its next chunk.
//
// Cap hits and early stops are clean: the error is nil and Summary.StopReason
// says why. A source failure returns a CategoryAudioSource error together with
// the results collected so far.
func (p *Pipeline) Run(ctx context.Context, source ChunkSource, newWorker WorkerFactory, onResult func(ChunkResult) bool) (Summary, error) {
	start := p.now()
	summary := Summary{Workers: p.cfg.Workers, Rejected: make(map[myaudio.RejectReason]int)}

	chunks := make(chan myaudio.Chunk, p.cfg.QueueSize)
	results := make(chan ChunkResult, p.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	var (
		stop    atomic.Bool
		reason  atomic.Int32
		emitted atomic.Int64
	)
	requestStop := func(r StopReason) {
		reason.CompareAndSwap(int32(StopComplete), int32(r))
		stop.Store(true)
	}

	sourceDone := make(chan error, 1)
	go func() {
		defer close(chunks)
		sourceDone <- source(gctx, func(chunk myaudio.Chunk) error {
			if stop.Load() {
				return myaudio.ErrStopReading
			}
			if p.cfg.MaxChunks > 0 && emitted.Load() >= int64(p.cfg.MaxChunks) {
				requestStop(StopChunkCap)
				return myaudio.ErrStopReading
			}
			if p.cfg.MaxDuration > 0 && p.now().Sub(start) >= p.cfg.MaxDuration {
				requestStop(StopTimeCap)
				return myaudio.ErrStopReading
			}
			select {
			case chunks <- chunk:
				emitted.Add(1)
				p.recorder.SetQueueDepth(metrics.QueueChunks, len(chunks))
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}()

	for id := range p.cfg.Workers {
		g.Go(func() error {
			return p.work(gctx, id, newWorker, chunks, results)
		})
	}

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- g.Wait()
		close(results)
	}()

	for res := range results {
		p.recorder.SetQueueDepth(metrics.QueueResults, len(results))
		if !p.discard {
			summary.Results = append(summary.Results, res)
		}
		if res.Accepted() {
			summary.Accepted++
		} else {
			summary.Rejected[res.Reason]++
		}
		if onResult != nil && !onResult(res) {
			requestStop(StopEarly)
		}
	}

	workerErr := <-workersDone
	sourceErr := <-sourceDone

	slices.SortFunc(summary.Results, func(a, b ChunkResult) int {
		return cmp.Compare(a.Index, b.Index)
	})
	summary.Emitted = int(emitted.Load())
	summary.StopReason = StopReason(reason.Load())
	summary.Duration = p.now().Sub(start)

	if err := ctx.Err(); err != nil {
		return summary, errors.New(err).
			Category(errors.CategoryCancellation).
			Context("operation", "pipeline_run").
			Context("chunks_emitted", summary.Emitted).
			Build()
	}
	if workerErr != nil {
		return summary, workerErr
	}
	if sourceErr != nil && !errors.Is(sourceErr, myaudio.ErrStopReading) {
		p.recorder.RecordError(metrics.OpDecode, errorType(sourceErr))
		return summary, errors.New(sourceErr).
			Category(errors.CategoryAudioSource).
			Context("operation", "pipeline_source").
			Context("chunks_emitted", summary.Emitted).
			Context("results_kept", len(summary.Results)).
			Build()
	}

	GetLogger().Debug("pipeline finished",
		logger.Int("chunks", summary.Emitted),
		logger.Int("accepted", summary.Accepted),
		logger.Int("workers", summary.Workers),
		logger.String("stop_reason", summary.StopReason.String()),
		logger.Duration("duration", summary.Duration))
	return summary, nil
}

// work owns one Worker for the lifetime of the run.
func (p *Pipeline) work(ctx context.Context, id int, newWorker WorkerFactory, chunks <-chan myaudio.Chunk, results chan<- ChunkResult) error {
	w, err := newWorker()
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryWorker).
			Context("operation", "create_worker").
			Context("worker_id", id).
			Build()
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			res, err := w.Process(chunk)
			if err != nil {
				return errors.New(err).
					Category(errors.CategoryWorker).
					Context("operation", "process_chunk").
					Context("worker_id", id).
					Context("chunk_index", chunk.Index).
					Build()
			}
			select {
			case results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// clampInt ensures a value is between min and max (inclusive)
func clampInt(value, minValue, maxValue int) int {
	return max(minValue, min(value, maxValue))
}
