package benchmark

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/analysis"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
)

const (
	toneHz        = 3000.0
	toneAmplitude = 0.3
	progressEvery = 10
)

// Command creates the benchmark command.
func Command(settings *conf.Settings) *cobra.Command {
	var duration time.Duration
	var pipelineMode bool

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Run classification benchmark",
		Long: `Measure per-chunk classification latency with one worker, or with
--pipeline the throughput of the full worker pool over synthetic audio.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				return fmt.Errorf("duration must be positive, got %s", duration)
			}
			models, err := analysis.LoadModels(settings)
			if err != nil {
				return err
			}
			defer models.Close()

			w := cmd.OutOrStdout()
			if pipelineMode {
				pipeline, err := analysis.NewPipeline(analysis.PipelineConfig{
					Workers:     settings.Pipeline.Workers,
					QueueSize:   settings.Pipeline.QueueSize,
					MaxDuration: duration,
				})
				if err != nil {
					return err
				}
				workers := pipeline.Config().Workers
				fmt.Fprintf(w, "⏳ Running pipeline benchmark for %s with %d workers...\n", duration, workers)
				res, err := measureThroughput(cmd.Context(), pipeline, models.WorkerFactory(nil, nil, workers, nil))
				if err != nil {
					return err
				}
				printThroughput(w, res)
				return nil
			}

			fmt.Fprintf(w, "⏳ Running benchmark for %s...\n", duration)
			res, err := measureLatency(cmd.Context(), models.WorkerFactory(nil, nil, 1, nil), duration, w)
			if err != nil {
				return err
			}
			printLatency(w, res)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "How long to run the benchmark")
	cmd.Flags().BoolVar(&pipelineMode, "pipeline", false, "Measure worker pool throughput instead of single worker latency")

	return cmd
}

// toneChunk returns a full chunk of a sine tone that passes the pre-filter.
func toneChunk() []float32 {
	samples := make([]float32, conf.ChunkSamples)
	for i := range samples {
		samples[i] = float32(toneAmplitude * math.Sin(2*math.Pi*toneHz*float64(i)/conf.SampleRate))
	}
	return samples
}

type latencyResults struct {
	inferences int
	average    time.Duration
	fastest    time.Duration
	slowest    time.Duration
}

// measureLatency processes tone chunks on one worker until duration passes.
func measureLatency(ctx context.Context, newWorker analysis.WorkerFactory, duration time.Duration, progress io.Writer) (latencyResults, error) {
	var res latencyResults
	worker, err := newWorker()
	if err != nil {
		return res, fmt.Errorf("failed to create worker: %w", err)
	}
	defer worker.Close()

	tone := toneChunk()
	var total time.Duration
	start := time.Now()
	for time.Since(start) < duration && ctx.Err() == nil {
		chunk := myaudio.Chunk{Index: res.inferences, Samples: append([]float32(nil), tone...)}
		t0 := time.Now()
		if _, err := worker.Process(chunk); err != nil {
			return res, fmt.Errorf("classification failed: %w", err)
		}
		elapsed := time.Since(t0)

		total += elapsed
		res.inferences++
		if res.fastest == 0 || elapsed < res.fastest {
			res.fastest = elapsed
		}
		res.slowest = max(res.slowest, elapsed)

		if progress != nil && res.inferences%progressEvery == 0 {
			fmt.Fprintf(progress, "\r🔄 Chunks: \033[1;36m%d\033[0m, Average time: \033[1;33m%dms\033[0m",
				res.inferences, (total / time.Duration(res.inferences)).Milliseconds())
		}
	}
	if progress != nil {
		fmt.Fprintln(progress) // newline after progress display
	}
	if res.inferences == 0 {
		return res, fmt.Errorf("no chunks classified")
	}
	res.average = total / time.Duration(res.inferences)
	return res, nil
}

func printLatency(w io.Writer, res latencyResults) {
	fmt.Fprintf(w, "\nChunks       Average    Fastest    Slowest\n")
	fmt.Fprintf(w, "───────────  ─────────  ─────────  ─────────\n")
	fmt.Fprintf(w, "%-11d  %6d ms  %6d ms  %6d ms\n",
		res.inferences, res.average.Milliseconds(), res.fastest.Milliseconds(), res.slowest.Milliseconds())
	rating, description := getPerformanceRating(float64(res.average.Milliseconds()))
	fmt.Fprintf(w, "\nSystem Rating: %s, %s\n", rating, description)
}

type throughputResults struct {
	chunks   int
	workers  int
	elapsed  time.Duration
	perChunk time.Duration // wall time per chunk across the pool
	realtime float64       // seconds of audio classified per wall second
}

// measureThroughput runs the pipeline over an endless tone stream until its
// time cap stops the producer.
func measureThroughput(ctx context.Context, pipeline *analysis.Pipeline, newWorker analysis.WorkerFactory) (throughputResults, error) {
	summary, err := pipeline.Run(ctx, toneSource(), newWorker, nil)
	if err != nil {
		return throughputResults{}, err
	}
	res := throughputResults{chunks: len(summary.Results), workers: summary.Workers, elapsed: summary.Duration}
	if res.chunks == 0 || res.elapsed <= 0 {
		return res, fmt.Errorf("no chunks classified")
	}
	res.perChunk = res.elapsed / time.Duration(res.chunks)
	res.realtime = float64(res.chunks*conf.ChunkSeconds) / res.elapsed.Seconds()
	return res, nil
}

// toneSource emits tone chunks back to back until asked to stop.
func toneSource() analysis.ChunkSource {
	tone := toneChunk()
	step := time.Duration(conf.ChunkSeconds) * time.Second
	return func(ctx context.Context, emit myaudio.ChunkCallback) error {
		for i := 0; ; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk := myaudio.Chunk{Index: i, Offset: time.Duration(i) * step, Samples: append([]float32(nil), tone...)}
			if err := emit(chunk); err != nil {
				return err
			}
		}
	}
}

func printThroughput(w io.Writer, res throughputResults) {
	fmt.Fprintf(w, "\nWorkers  Chunks     Per chunk   Speed\n")
	fmt.Fprintf(w, "───────  ─────────  ──────────  ──────────────\n")
	fmt.Fprintf(w, "%-7d  %-9d  %7d ms  %8.1fx realtime\n",
		res.workers, res.chunks, res.perChunk.Milliseconds(), res.realtime)
	rating, description := getPerformanceRating(float64(res.perChunk.Milliseconds()))
	fmt.Fprintf(w, "\nSystem Rating: %s, %s\n", rating, description)
}

// getPerformanceRating rates a per-chunk time in milliseconds. Live analysis
// classifies one chunk per hop, so anything slower than a hop falls behind.
func getPerformanceRating(chunkTime float64) (rating, description string) {
	hop := float64(conf.LiveHop) / conf.SampleRate * 1000
	switch {
	case chunkTime > 2*hop:
		return "❌ Failed", "System is too slow for live analysis"
	case chunkTime > hop:
		return "❌ Very Poor", "System cannot keep up with live analysis at 50% overlap"
	case chunkTime > hop/2:
		return "⚠️ Poor", "System may struggle with live analysis"
	case chunkTime > 500:
		return "👍 Decent", "System should handle live analysis"
	case chunkTime > 200:
		return "✨ Good", "System will perform well"
	case chunkTime > 100:
		return "🌟 Very Good", "System will perform very well"
	case chunkTime > 20:
		return "🏆 Excellent", "System will perform excellently"
	default:
		return "🚀 Superb", "System will perform exceptionally well"
	}
}
