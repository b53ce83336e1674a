package analysis

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/detection"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
	"github.com/tphakala/birdnet-pipeline/internal/observability"
	"github.com/tphakala/birdnet-pipeline/internal/observability/metrics"
	"github.com/tphakala/birdnet-pipeline/internal/suncalc"
)

// chunkPollInterval is how often the consumer looks for buffered chunks.
const chunkPollInterval = 50 * time.Millisecond

// LiveSource feeds captured 16 bit mono PCM into sink until ctx is done or
// the source ends.
type LiveSource interface {
	Name() string
	Run(ctx context.Context, sink io.Writer, meter *myaudio.LevelMeter) error
}

type deviceSource struct{ device string }

// NewDeviceSource captures from a sound card; an empty name selects the
// default device.
func NewDeviceSource(device string) LiveSource { return &deviceSource{device: device} }

func (s *deviceSource) Name() string {
	if s.device == "" {
		return "default"
	}
	return s.device
}

func (s *deviceSource) Run(ctx context.Context, sink io.Writer, meter *myaudio.LevelMeter) error {
	capture, err := myaudio.StartCapture(s.device, sink, meter)
	if err != nil {
		return err
	}
	<-ctx.Done()
	capture.Stop()
	return nil
}

type readerSource struct {
	name string
	r    io.Reader
}

// NewReaderSource streams raw PCM from r, for example stdin.
func NewReaderSource(name string, r io.Reader) LiveSource { return &readerSource{name: name, r: r} }

func (s *readerSource) Name() string { return s.name }

func (s *readerSource) Run(ctx context.Context, sink io.Writer, meter *myaudio.LevelMeter) error {
	return myaudio.StreamPCM(ctx, s.r, sink, meter)
}

// LiveSourceFromSettings selects the configured source. stdin backs the
// "stdin" source.
func LiveSourceFromSettings(s *conf.RealtimeSettings, stdin io.Reader) (LiveSource, error) {
	switch s.Source {
	case "device", "":
		return NewDeviceSource(s.Device), nil
	case "stdin":
		return NewReaderSource("stdin", stdin), nil
	default:
		return nil, errors.Newf("unknown realtime source %q", s.Source).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Control is a command for a running live session.
type Control string

const (
	ControlPause   Control = "pause"
	ControlResume  Control = "resume"
	ControlReport  Control = "report"
	ControlRestart Control = "restart" // stop, reset and prepare a new session
)

// RealtimeOption tunes RealtimeAnalysis.
type RealtimeOption func(*Realtime)

// WithControl accepts session commands from ch.
func WithControl(ch <-chan Control) RealtimeOption {
	return func(rt *Realtime) { rt.control = ch }
}

// WithStateListener observes session state changes.
func WithStateListener(l detection.StateListener) RealtimeOption {
	return func(rt *Realtime) { rt.session.OnStateChange(l) }
}

// RealtimeAnalysis runs a live session on source until ctx is done or the
// source ends, printing surfaced detections and periodic confirmed lists to
// out.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, source LiveSource, out io.Writer, opts ...RealtimeOption) error {
	logSystemDetails(settings)

	models, err := LoadModels(settings)
	if err != nil {
		return err
	}
	defer models.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if settings.Realtime.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		endpoint, err := observability.NewEndpoint(&settings.Realtime.Metrics, m)
		if err != nil {
			return err
		}
		recorder = m.Pipeline
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	prepare := func(ctx context.Context) (WorkerFactory, error) {
		profile, err := models.BuildMetaProfile(ctx, func(done, total int) {
			GetLogger().Debug("meta profile progress", logger.Int("rows_done", done), logger.Int("rows", total))
		})
		if err != nil {
			return nil, err
		}
		loc := models.LocationContext(time.Now())
		if profile != nil {
			loc = nil
		}
		return models.WorkerFactory(profile, loc, 1, recorder), nil
	}

	rt, err := NewRealtime(settings, models.Taxonomy(), prepare, recorder, out, opts...)
	if err != nil {
		return err
	}
	g.Go(func() error {
		// stops the metrics endpoint once the session ends
		defer cancel()
		return rt.Run(gctx, source)
	})
	return g.Wait()
}

// PrepareWorkers readies a live session and returns its worker factory.
type PrepareWorkers func(ctx context.Context) (WorkerFactory, error)

// Realtime drives one live session: source -> chunker -> pipeline -> session.
type Realtime struct {
	settings *conf.Settings
	session  *detection.Session
	chunker  *myaudio.Chunker
	meter    *myaudio.LevelMeter
	prepare  PrepareWorkers
	sun      *suncalc.SunCalc // nil without a location
	recorder metrics.Recorder
	control  <-chan Control
	now      func() time.Time

	outMu sync.Mutex
	out   io.Writer

	workerMu sync.Mutex
	worker   Worker // prepared for the current session until a pipeline takes it
}

// NewRealtime wires a live session. families may be nil for genus grouping.
func NewRealtime(settings *conf.Settings, families detection.FamilyResolver, prepare PrepareWorkers, recorder metrics.Recorder, out io.Writer, opts ...RealtimeOption) (*Realtime, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	aggregator, err := detection.NewAggregator(detection.ModeLive,
		detection.AggregatorOptionsFromSettings(&settings.Aggregator)...)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "new_aggregator").
			Build()
	}
	filter, err := detection.NewFinalFilter(families, float32(settings.Filter.Anchor), aggregator.NonBird())
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "new_final_filter").
			Build()
	}
	session, err := detection.NewSession(aggregator, filter)
	if err != nil {
		return nil, err
	}
	chunker, err := myaudio.NewChunker(conf.LiveHop)
	if err != nil {
		return nil, err
	}

	rt := &Realtime{
		settings: settings,
		session:  session,
		chunker:  chunker,
		prepare:  prepare,
		recorder: recorder,
		out:      out,
		now:      time.Now,
	}
	rt.meter = myaudio.NewLevelMeter(func(l myaudio.AudioLevel) {
		recorder.SetAudioLevel(l.DB)
	})
	if settings.BirdNET.HasLocation() {
		rt.sun = suncalc.NewSunCalc(settings.BirdNET.Latitude, settings.BirdNET.Longitude)
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

// Session returns the live session.
func (rt *Realtime) Session() *detection.Session { return rt.session }

// Level returns the most recent input level.
func (rt *Realtime) Level() (myaudio.AudioLevel, bool) { return rt.meter.Current() }

// Run prepares the session, then captures and analyzes until ctx is done or
// the source ends. Either way the session is stopped and a final confirmed
// list is printed.
func (rt *Realtime) Run(ctx context.Context, source LiveSource) error {
	if err := rt.start(ctx); err != nil {
		return err
	}
	defer rt.closeWorker()

	GetLogger().Info("live analysis started",
		logger.String("source", source.Name()),
		logger.String("session_id", rt.session.ID()))

	g, gctx := errgroup.WithContext(ctx)
	sourceDone := make(chan struct{})
	g.Go(func() error {
		defer close(sourceDone)
		err := source.Run(gctx, rt.chunker, rt.meter)
		if err != nil && gctx.Err() != nil {
			return nil
		}
		if err != nil {
			rt.recorder.RecordError(metrics.OpCapture, errorType(err))
			return errors.New(err).
				Category(errors.CategoryAudioSource).
				Context("operation", "live_source").
				Context("source", source.Name()).
				Build()
		}
		return nil
	})
	g.Go(func() error { return rt.analyze(gctx, sourceDone) })

	err := g.Wait()
	if dropped := rt.chunker.Dropped(); dropped > 0 {
		GetLogger().Warn("audio dropped during session", logger.Int("bytes", dropped))
	}
	if stopErr := rt.session.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	rt.report("Confirmed species")
	return err
}

func (rt *Realtime) start(ctx context.Context) error {
	return rt.session.Start(ctx, func(ctx context.Context) error {
		newWorker, err := rt.prepare(ctx)
		if err != nil {
			return err
		}
		w, err := newWorker()
		if err != nil {
			return err
		}
		rt.workerMu.Lock()
		rt.worker = w
		rt.workerMu.Unlock()
		return nil
	})
}

// takeWorker hands the worker prepared for the current session to the
// pipeline, which closes it when the segment ends.
func (rt *Realtime) takeWorker() (Worker, error) {
	rt.workerMu.Lock()
	defer rt.workerMu.Unlock()
	w := rt.worker
	rt.worker = nil
	if w == nil {
		return nil, errors.Newf("no prepared worker for session %s", rt.session.ID()).
			Category(errors.CategoryState).
			Build()
	}
	return w, nil
}

// closeWorker releases a prepared worker no pipeline took over.
func (rt *Realtime) closeWorker() {
	rt.workerMu.Lock()
	defer rt.workerMu.Unlock()
	if rt.worker != nil {
		rt.worker.Close()
		rt.worker = nil
	}
}

// analyze runs one pipeline segment per session until the stream ends. A
// restart command ends the segment and prepares a fresh session.
func (rt *Realtime) analyze(ctx context.Context, sourceDone <-chan struct{}) error {
	for {
		restart, err := rt.runSegment(ctx, sourceDone)
		if err != nil || !restart {
			return err
		}
		if err := rt.restart(ctx); err != nil {
			return err
		}
	}
}

// runSegment drives buffered chunks through a single worker pipeline.
// Cancellation of ctx is a clean end of the session.
func (rt *Realtime) runSegment(ctx context.Context, sourceDone <-chan struct{}) (restart bool, err error) {
	p, err := NewPipeline(PipelineConfig{Workers: 1, QueueSize: rt.settings.Pipeline.QueueSize},
		WithRecorder(rt.recorder), WithDiscardResults())
	if err != nil {
		return false, err
	}

	var resultErr error
	_, err = p.Run(ctx, rt.liveChunks(sourceDone, &restart), rt.takeWorker, func(res ChunkResult) bool {
		resultErr = rt.onResult(res)
		return resultErr == nil
	})
	if ctx.Err() != nil {
		return false, nil
	}
	if err == nil {
		err = resultErr
	}
	return restart, err
}

// liveChunks emits chunks as the chunker completes them and serves control
// commands and report ticks in between. It ends when the live source is done,
// or with ErrStopReading when a restart is requested.
func (rt *Realtime) liveChunks(sourceDone <-chan struct{}, restart *bool) ChunkSource {
	return func(ctx context.Context, emit myaudio.ChunkCallback) error {
		poll := time.NewTicker(chunkPollInterval)
		defer poll.Stop()
		reports := time.NewTicker(rt.settings.Realtime.ReportInterval)
		defer reports.Stop()

		for {
			if err := rt.forward(emit); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sourceDone:
				return rt.forward(emit)
			case <-poll.C:
			case <-reports.C:
				rt.periodicReport()
			case c := <-rt.control:
				restartNow, err := rt.handleControl(c)
				if err != nil {
					return err
				}
				if restartNow {
					*restart = true
					return myaudio.ErrStopReading
				}
			}
		}
	}
}

// forward emits every complete buffered chunk. While paused chunks are
// discarded, keeping aggregator state.
func (rt *Realtime) forward(emit myaudio.ChunkCallback) error {
	for {
		chunk, ok := rt.chunker.Next()
		if !ok {
			return nil
		}
		if rt.session.State() != detection.StateAnalyzing {
			rt.recorder.RecordOperation(metrics.OpChunk, metrics.StatusDropped)
			continue
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
}

// onResult feeds one classified chunk to the session and prints what
// surfaces.
func (rt *Realtime) onResult(res ChunkResult) error {
	finals, err := rt.session.OnChunk(res.Detections)
	if errors.IsCategory(err, errors.CategoryState) {
		// paused or stopped after the chunk was queued
		return nil
	}
	if err != nil {
		return err
	}
	for i := range finals {
		rt.recorder.RecordDetection(finals[i].Source.String(), finals[i].ScientificName)
	}
	rt.printDetections(res.Index, finals)
	return nil
}

// restart stops the current session and prepares a new one with a fresh
// aggregator and worker.
func (rt *Realtime) restart(ctx context.Context) error {
	if err := rt.session.Stop(); err != nil {
		return err
	}
	rt.closeWorker()
	rt.chunker.Reset()
	return rt.start(ctx)
}

// handleControl applies a command. A restart is reported to the caller,
// which has to end the running segment first.
func (rt *Realtime) handleControl(c Control) (restart bool, err error) {
	log := GetLogger()
	switch c {
	case ControlPause:
		err = rt.session.Pause()
	case ControlResume:
		err = rt.session.Resume()
	case ControlReport:
		rt.report("Confirmed species")
	case ControlRestart:
		return true, nil
	default:
		log.Warn("unknown control command", logger.String("command", string(c)))
		return false, nil
	}
	if errors.IsCategory(err, errors.CategoryState) {
		log.Warn("control command ignored", logger.String("command", string(c)), logger.Error(err))
		return false, nil
	}
	return false, err
}

// periodTag returns the solar period of t, empty without a location.
func (rt *Realtime) periodTag(t time.Time) string {
	if rt.sun == nil {
		return ""
	}
	period, err := rt.sun.Period(t)
	if err != nil {
		return ""
	}
	return period.String()
}

func (rt *Realtime) printDetections(index int, finals []detection.FinalDetection) {
	if len(finals) == 0 {
		return
	}
	now := rt.now()
	tag := rt.periodTag(now)

	var b strings.Builder
	for i := range finals {
		f := &finals[i]
		fmt.Fprintf(&b, "%s chunk %d  %-30s %-30s %5.1f%%  %s",
			now.Format("15:04:05"), index, f.CommonName, f.ScientificName, f.Confidence*100, f.Source)
		if tag != "" {
			fmt.Fprintf(&b, "  [%s]", tag)
		}
		b.WriteByte('\n')
	}
	rt.write(b.String())
}

func (rt *Realtime) report(title string) {
	rt.outMu.Lock()
	defer rt.outMu.Unlock()
	if err := WriteConfirmed(rt.out, title, rt.session.Confirmed()); err != nil {
		GetLogger().Warn("failed to write confirmed species", logger.Error(err))
	}
}

// periodicReport prints the confirmed list followed by the latest input level.
func (rt *Realtime) periodicReport() {
	rt.report("Confirmed species")
	if level, ok := rt.Level(); ok {
		rt.write(formatLevel(level))
	}
}

func (rt *Realtime) write(s string) {
	rt.outMu.Lock()
	defer rt.outMu.Unlock()
	if _, err := io.WriteString(rt.out, s); err != nil {
		GetLogger().Warn("failed to write detections", logger.Error(err))
	}
}

// logSystemDetails logs the host platform and the effective live settings.
func logSystemDetails(settings *conf.Settings) {
	log := GetLogger()
	if info, err := host.Info(); err == nil {
		log.Info("system details",
			logger.String("os", info.OS),
			logger.String("platform", info.Platform),
			logger.String("platform_version", info.PlatformVersion),
			logger.String("arch", info.KernelArch))
	} else {
		log.Warn("failed to retrieve host info", logger.Error(err))
	}
	log.Info("starting live analysis",
		logger.Float64("threshold", settings.BirdNET.Threshold),
		logger.Float64("sensitivity", settings.BirdNET.Sensitivity),
		logger.Float64("anchor", settings.Filter.Anchor),
		logger.Int("window", settings.Aggregator.Window),
		logger.Duration("report_interval", settings.Realtime.ReportInterval))
}
