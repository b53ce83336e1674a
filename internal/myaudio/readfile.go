package myaudio

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// GetAudioInfo returns basic information about a WAV or FLAC file.
func GetAudioInfo(filePath string) (AudioInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return AudioInfo{}, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "open_audio_file").
			FileContext(filePath, 0).
			Build()
	}
	defer func() { _ = file.Close() }()

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".wav":
		return readWAVInfo(file)
	case ".flac":
		return readFLACInfo(file)
	default:
		return AudioInfo{}, unsupportedFormat(filePath)
	}
}

// ReadAudioFile decodes a WAV or FLAC file and delivers conf.ChunkSamples
// long mono chunks at conf.SampleRate to callback, in order. Consecutive
// chunks start conf.ChunkStep(overlap) samples apart. A trailing partial chunk
// of at least conf.MinTailLength samples is zero padded; shorter tails are
// dropped.
//
// Decoding stops when ctx is cancelled or the callback returns an error. A
// callback returning ErrStopReading ends decoding without error.
func ReadAudioFile(ctx context.Context, filePath string, overlap float64, callback ChunkCallback) error {
	file, err := os.Open(filePath)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "open_audio_file").
			FileContext(filePath, 0).
			Build()
	}
	defer func() { _ = file.Close() }()

	asm := newChunkAssembler(ctx, conf.ChunkStep(overlap), callback)

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".wav":
		err = readWAVBuffered(file, asm)
	case ".flac":
		err = readFLACBuffered(file, asm)
	default:
		return unsupportedFormat(filePath)
	}

	if err == nil {
		err = asm.finish()
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStopReading):
		GetLogger().Debug("decoding stopped by consumer",
			logger.String("file", filepath.Base(filePath)),
			logger.Int("chunks", asm.index))
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			return err
		}
		return errors.New(err).
			Category(errors.CategoryAudioDecode).
			Context("operation", "decode_audio_file").
			Context("file", filepath.Base(filePath)).
			Context("chunks_delivered", asm.index).
			Build()
	}
}

func unsupportedFormat(filePath string) error {
	return errors.New(ErrUnsupportedFormat).
		Category(errors.CategoryAudioDecode).
		Context("extension", strings.ToLower(filepath.Ext(filePath))).
		Context("supported", ".wav,.flac").
		Build()
}

// chunkAssembler slices a continuous mono stream into overlapping chunks.
type chunkAssembler struct {
	ctx      context.Context
	step     int
	callback ChunkCallback
	resample *resampler
	current  []float32
	index    int
	position int // stream position of current[0] in samples
}

func newChunkAssembler(ctx context.Context, step int, callback ChunkCallback) *chunkAssembler {
	return &chunkAssembler{ctx: ctx, step: step, callback: callback}
}

// setSourceRate enables resampling when the decoder rate differs.
func (a *chunkAssembler) setSourceRate(rate int) error {
	r, err := newResampler(rate, conf.SampleRate)
	if err != nil {
		return err
	}
	a.resample = r
	if r != nil {
		GetLogger().Debug("resampling input", logger.Int("from", rate), logger.Int("to", conf.SampleRate))
	}
	return nil
}

// push appends decoded samples and emits every complete chunk.
func (a *chunkAssembler) push(samples []float32) error {
	if a.resample != nil {
		samples = a.resample.Process(samples)
	}
	a.current = append(a.current, samples...)
	return a.drain()
}

func (a *chunkAssembler) drain() error {
	for len(a.current) >= conf.ChunkSamples {
		if err := a.emit(a.current[:conf.ChunkSamples]); err != nil {
			return err
		}
		a.advance(a.step)
	}
	return nil
}

// advance drops consumed samples, compacting so the backing array stays bounded.
func (a *chunkAssembler) advance(n int) {
	n = min(n, len(a.current))
	remaining := copy(a.current, a.current[n:])
	a.current = a.current[:remaining]
	a.position += n
}

// emit copies samples into a new chunk owned by the callback.
func (a *chunkAssembler) emit(samples []float32) error {
	if err := a.ctx.Err(); err != nil {
		return err
	}
	owned := make([]float32, conf.ChunkSamples)
	copy(owned, samples)

	chunk := Chunk{Index: a.index, Offset: offsetForSample(a.position), Samples: owned}
	a.index++
	return a.callback(chunk)
}

// finish flushes the resampler and pads the tail chunk.
func (a *chunkAssembler) finish() error {
	if a.resample != nil {
		a.current = append(a.current, a.resample.Flush()...)
		if err := a.drain(); err != nil {
			return err
		}
	}

	// nothing new since the last emitted chunk
	if a.index > 0 && len(a.current) <= conf.ChunkSamples-a.step {
		return nil
	}
	if len(a.current) < conf.MinTailLength {
		return nil
	}
	return a.emit(a.current)
}
