package myaudio

import (
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// Chunk is one fixed length window of mono float32 PCM in [-1, 1].
type Chunk struct {
	Index   int           // position in the stream, starting at 0
	Offset  time.Duration // start time relative to the stream start
	Samples []float32     // conf.ChunkSamples samples, owned by the receiver
}

// End returns the end time of the chunk relative to the stream start.
func (c Chunk) End() time.Duration {
	return c.Offset + offsetForSample(len(c.Samples))
}

// ProcessedChunk is the filtered and normalized output of ChunkProcessor.
type ProcessedChunk struct {
	Samples []float32
	RMS     float64 // after normalization
	Peak    float64 // after normalization
}

// AudioInfo describes a decoded audio file.
type AudioInfo struct {
	Format       string
	SampleRate   int
	TotalSamples int // per channel
	NumChannels  int
	BitDepth     int
}

// Duration returns the playback length of the file.
func (i AudioInfo) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(i.TotalSamples) / float64(i.SampleRate) * float64(time.Second))
}

// ChunkCallback receives each chunk in stream order. Returning ErrStopReading
// ends decoding cleanly; any other error aborts it.
type ChunkCallback func(Chunk) error

// offsetForSample converts a sample position at conf.SampleRate to a duration.
func offsetForSample(pos int) time.Duration {
	return time.Duration(float64(pos) / conf.SampleRate * float64(time.Second))
}
