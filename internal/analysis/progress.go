package analysis

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
)

const progressInterval = 100 * time.Millisecond

// progress prints a single self-overwriting status line while a file is
// analyzed.
type progress struct {
	w        io.Writer
	filename string
	duration time.Duration
	total    int
	done     atomic.Int64
	start    time.Time
	stop     chan struct{}
	wg       sync.WaitGroup
}

func newProgress(w io.Writer, path string, info myaudio.AudioInfo, overlap float64) *progress {
	return &progress{
		w:        w,
		filename: truncateFilename(path),
		duration: info.Duration(),
		total:    estimateChunks(info, overlap),
		start:    time.Now(),
		stop:     make(chan struct{}),
	}
}

func (p *progress) run() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				done := int(p.done.Load())
				_, _ = fmt.Fprintf(p.w, "\r\033[K\033[37m📄 %s [%s]\033[0m | \033[33m🔍 Analyzing chunk %d/%d\033[0m %s",
					p.filename,
					p.duration.Round(time.Second),
					done,
					p.total,
					estimateTimeRemaining(p.start, done, p.total))
			}
		}
	}()
}

func (p *progress) tick() { p.done.Add(1) }

// finish stops the ticker and prints the completion line.
func (p *progress) finish(err error) {
	close(p.stop)
	p.wg.Wait()
	if err != nil {
		_, _ = fmt.Fprintf(p.w, "\r\033[K\033[37m📄 %s [%s]\033[0m | \033[31m❌ Analysis failed after %s\033[0m\n",
			p.filename, p.duration.Round(time.Second), formatDuration(time.Since(p.start)))
		return
	}
	_, _ = fmt.Fprintf(p.w, "\r\033[K\033[37m📄 %s [%s]\033[0m | \033[32m✅ Analysis completed in %s\033[0m\n",
		p.filename, p.duration.Round(time.Second), formatDuration(time.Since(p.start)))
}

// estimateChunks returns the number of chunks a file decodes into.
func estimateChunks(info myaudio.AudioInfo, overlap float64) int {
	if info.SampleRate <= 0 {
		return 0
	}
	samples := int(int64(info.TotalSamples) * conf.SampleRate / int64(info.SampleRate))
	step := conf.ChunkStep(overlap)
	full := 0
	if samples >= conf.ChunkSamples {
		full = (samples-conf.ChunkSamples)/step + 1
	}
	remaining := samples - full*step
	if full > 0 && remaining <= conf.ChunkSamples-step {
		return full
	}
	if remaining < conf.MinTailLength {
		return full
	}
	return full + 1
}

func estimateTimeRemaining(start time.Time, done, total int) string {
	if done == 0 || total == 0 {
		return ""
	}
	elapsed := time.Since(start)
	remaining := time.Duration(float64(elapsed) / float64(done) * float64(max(total-done, 0)))
	return fmt.Sprintf("[%s remaining]", formatDuration(remaining))
}

// formatDuration renders d rounded for humans: 850ms, 42s, 3m 5s, 1h 2m.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Round(time.Millisecond).Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Round(time.Second).Seconds()))
	case d < time.Hour:
		d = d.Round(time.Second)
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		d = d.Round(time.Minute)
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncateFilename truncates the filename to 30 characters if it's longer.
func truncateFilename(path string) string {
	filename := filepath.Base(path)
	if len(filename) > 30 {
		return filename[:27] + "..."
	}
	return filename
}
