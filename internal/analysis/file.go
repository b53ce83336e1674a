package analysis

import (
	"cmp"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/detection"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
	"github.com/tphakala/birdnet-pipeline/internal/observability/metrics"
)

// FileReport is the outcome of analyzing one file. After a source failure it
// holds the partial results gathered before the failure.
type FileReport struct {
	Path         string
	Info         myaudio.AudioInfo
	Summary      Summary
	Observations []Observation
	Confirmed    []detection.ConfirmedDetection
	OutputPath   string // file the observations were written to, empty for stdout
}

// FileOption tunes FileAnalysis.
type FileOption func(*fileRun)

// WithProgress prints a progress line to w while the file is analyzed.
func WithProgress(w io.Writer) FileOption {
	return func(r *fileRun) { r.progressOut = w }
}

// WithStopOnConfirmed stops decoding as soon as one of the named species,
// scientific or common name, is confirmed.
func WithStopOnConfirmed(species ...string) FileOption {
	return func(r *fileRun) {
		for _, s := range species {
			if s = foldName(s); s != "" {
				r.targets = append(r.targets, s)
			}
		}
	}
}

// WithResultsWriter sets where observations go when no output path is
// configured. The default is stdout.
func WithResultsWriter(w io.Writer) FileOption {
	return func(r *fileRun) { r.stdout = w }
}

// WithFileRecorder records pipeline metrics.
func WithFileRecorder(rec metrics.Recorder) FileOption {
	return func(r *fileRun) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// FileAnalysis decodes a WAV or FLAC file, classifies every chunk, confirms
// species over the whole file and writes the observations in the configured
// format.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, opts ...FileOption) (*FileReport, error) {
	if _, err := validateAudioFile(path); err != nil {
		return nil, err
	}

	models, err := LoadModels(settings)
	if err != nil {
		return nil, err
	}
	defer models.Close()

	analyzer, err := NewFileAnalyzer(ctx, settings, models, opts...)
	if err != nil {
		return nil, err
	}
	return analyzer.Analyze(ctx, path)
}

// FileAnalyzer analyzes files one after another with shared models and a
// MetaProfile built once.
type FileAnalyzer struct {
	settings  *conf.Settings
	pipeline  *Pipeline
	newWorker WorkerFactory
	opts      []FileOption
}

// NewFileAnalyzer builds the MetaProfile, when a region is configured, and
// the worker pool configuration for later Analyze calls.
func NewFileAnalyzer(ctx context.Context, settings *conf.Settings, models *Models, opts ...FileOption) (*FileAnalyzer, error) {
	recorder := newFileRun(settings, "", myaudio.AudioInfo{}, opts...).recorder
	pipeline, err := NewPipeline(PipelineConfigFromSettings(&settings.Pipeline), WithRecorder(recorder))
	if err != nil {
		return nil, err
	}

	profile, err := models.BuildMetaProfile(ctx, nil)
	if err != nil {
		return nil, err
	}
	var loc *birdnet.LocationContext
	if profile == nil {
		loc = models.LocationContext(time.Now())
	}
	return &FileAnalyzer{
		settings:  settings,
		pipeline:  pipeline,
		newWorker: models.WorkerFactory(profile, loc, pipeline.Config().Workers, recorder),
		opts:      opts,
	}, nil
}

// Analyze runs one file through the pipeline and writes its observations.
func (a *FileAnalyzer) Analyze(ctx context.Context, path string) (*FileReport, error) {
	info, err := validateAudioFile(path)
	if err != nil {
		return nil, err
	}
	run := newFileRun(a.settings, path, info, a.opts...)
	report, err := run.analyze(ctx, a.pipeline, FileSource(path, a.settings.BirdNET.Overlap), a.newWorker)
	if err != nil {
		return report, err
	}
	if report.OutputPath, err = writeResults(a.settings, report, run.stdout); err != nil {
		return report, err
	}
	return report, nil
}

type fileRun struct {
	settings    *conf.Settings
	path        string
	info        myaudio.AudioInfo
	progressOut io.Writer
	stdout      io.Writer
	targets     []string
	recorder    metrics.Recorder
}

func newFileRun(settings *conf.Settings, path string, info myaudio.AudioInfo, opts ...FileOption) *fileRun {
	r := &fileRun{
		settings: settings,
		path:     path,
		info:     info,
		stdout:   os.Stdout,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// analyze runs the pipeline and aggregates results in chunk order as they
// become contiguous.
func (r *fileRun) analyze(ctx context.Context, pipeline *Pipeline, source ChunkSource, newWorker WorkerFactory) (*FileReport, error) {
	start := time.Now()
	aggregator, err := detection.NewAggregator(detection.ModeFile,
		detection.AggregatorOptionsFromSettings(&r.settings.Aggregator)...)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "new_aggregator").
			Build()
	}

	var prog *progress
	if r.progressOut != nil {
		prog = newProgress(r.progressOut, r.path, r.info, r.settings.BirdNET.Overlap)
		prog.run()
	}

	feed := newOrderedFeed(func(res ChunkResult) {
		aggregator.AddChunkResults(res.Detections)
	})
	onResult := func(res ChunkResult) bool {
		if prog != nil {
			prog.tick()
		}
		feed.add(res)
		return !r.targetConfirmed(aggregator)
	}

	summary, runErr := pipeline.Run(ctx, source, newWorker, onResult)
	feed.flush()
	if prog != nil {
		prog.finish(runErr)
	}

	report := &FileReport{
		Path:         r.path,
		Info:         r.info,
		Summary:      summary,
		Observations: observations(summary.Results),
		Confirmed:    aggregator.ConfirmedDetections(),
	}
	for i := range report.Confirmed {
		r.recorder.RecordDetection(metrics.SourceConfirmed, report.Confirmed[i].ScientificName)
	}

	status := metrics.StatusSuccess
	if runErr != nil {
		status = metrics.StatusError
		r.recorder.RecordError(metrics.OpFileAnalysis, errorType(runErr))
	}
	r.recorder.RecordOperation(metrics.OpFileAnalysis, status)
	r.recorder.RecordDuration(metrics.OpFileAnalysis, time.Since(start).Seconds())

	log := GetLogger()
	if runErr != nil {
		log.Error("file analysis failed",
			logger.String("file", r.path),
			logger.Int("chunks", summary.Emitted),
			logger.Int("results_kept", len(summary.Results)),
			logger.Error(runErr))
		return report, runErr
	}
	log.Info("file analysis completed",
		logger.String("file", r.path),
		logger.Int("chunks", summary.Emitted),
		logger.Int("accepted", summary.Accepted),
		logger.Int("detections", len(report.Observations)),
		logger.Int("confirmed", len(report.Confirmed)),
		logger.String("stop_reason", summary.StopReason.String()),
		logger.Duration("duration", time.Since(start)))
	return report, nil
}

func (r *fileRun) targetConfirmed(a *detection.Aggregator) bool {
	if len(r.targets) == 0 {
		return false
	}
	for _, c := range a.ConfirmedDetections() {
		sci, common := foldName(c.ScientificName), foldName(c.CommonName)
		if slices.Contains(r.targets, sci) || slices.Contains(r.targets, common) {
			return true
		}
	}
	return false
}

// foldName case-folds a species name for matching. A Caser holds state, so
// each call gets its own.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// orderedFeed releases results to fn in chunk index order, holding back
// results that complete ahead of an earlier chunk.
type orderedFeed struct {
	next    int
	pending map[int]ChunkResult
	fn      func(ChunkResult)
}

func newOrderedFeed(fn func(ChunkResult)) *orderedFeed {
	return &orderedFeed{pending: make(map[int]ChunkResult), fn: fn}
}

func (f *orderedFeed) add(res ChunkResult) {
	f.pending[res.Index] = res
	for {
		next, ok := f.pending[f.next]
		if !ok {
			return
		}
		delete(f.pending, f.next)
		f.fn(next)
		f.next++
	}
}

// flush releases whatever is still held, in order. Gaps are left by chunks
// that were in flight when a run failed.
func (f *orderedFeed) flush() {
	rest := make([]ChunkResult, 0, len(f.pending))
	for _, res := range f.pending {
		rest = append(rest, res)
	}
	slices.SortFunc(rest, func(a, b ChunkResult) int { return cmp.Compare(a.Index, b.Index) })
	for _, res := range rest {
		f.fn(res)
	}
	clear(f.pending)
}

// validateAudioFile checks if the provided file path is a valid audio file.
func validateAudioFile(filePath string) (myaudio.AudioInfo, error) {
	base := filepath.Base(filePath)
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return myaudio.AudioInfo{}, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "stat_audio_file").
			FileContext(filePath, 0).
			Build()
	}
	if fileInfo.IsDir() {
		return myaudio.AudioInfo{}, errors.Newf("the path %s is a directory, not a file", base).
			Category(errors.CategoryValidation).
			FileContext(filePath, 0).
			Build()
	}
	if fileInfo.Size() == 0 {
		return myaudio.AudioInfo{}, errors.Newf("file %s is empty (0 bytes)", base).
			Category(errors.CategoryValidation).
			FileContext(filePath, 0).
			Build()
	}

	info, err := myaudio.GetAudioInfo(filePath)
	if err != nil {
		return myaudio.AudioInfo{}, err
	}
	if info.TotalSamples == 0 {
		return myaudio.AudioInfo{}, errors.Newf("file %s contains no samples or is still being written", base).
			Category(errors.CategoryValidation).
			FileContext(filePath, fileInfo.Size()).
			Build()
	}
	return info, nil
}
