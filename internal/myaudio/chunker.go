package myaudio

import (
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

const bytesPerSample = conf.BitDepth / 8

// chunkerBufferChunks sizes the ring buffer in whole chunks of PCM.
const chunkerBufferChunks = 4

// Chunker turns a live stream of 16 bit mono PCM at conf.SampleRate into
// overlapping chunks. Write is called from the capture callback and Next from
// the consumer; both are safe for concurrent use.
type Chunker struct {
	mu       sync.Mutex
	buf      *ringbuffer.RingBuffer
	window   []byte // bytes read from buf not yet fully consumed
	readBuf  []byte
	hopBytes int
	index    int
	position int // stream position of window[0] in samples
	dropped  int
	drops    int
}

// NewChunker returns a Chunker emitting a chunk every hop samples.
func NewChunker(hop int) (*Chunker, error) {
	if hop <= 0 || hop > conf.ChunkSamples {
		return nil, errors.Newf("chunker hop must be in (0, %d], got %d", conf.ChunkSamples, hop).
			Category(errors.CategoryValidation).
			Context("operation", "new_chunker").
			Build()
	}
	capacity := chunkerBufferChunks * conf.ChunkSamples * bytesPerSample
	return &Chunker{
		buf:      ringbuffer.New(capacity),
		window:   make([]byte, 0, conf.ChunkSamples*bytesPerSample),
		readBuf:  make([]byte, capacity),
		hopBytes: hop * bytesPerSample,
	}, nil
}

// Write buffers captured PCM. When the consumer falls behind the excess is
// dropped and ErrBufferFull is returned.
func (c *Chunker) Write(pcm []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.buf.Write(pcm)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, ringbuffer.ErrIsFull) || n < len(pcm) {
		c.dropped += len(pcm) - n
		c.drops++
		// log the first drop and then every 32nd
		if c.drops%32 == 1 {
			GetLogger().Warn("chunker buffer full, dropping audio",
				logger.Int("dropped_bytes", len(pcm)-n),
				logger.Int("drop_events", c.drops),
				logger.Int("capacity", c.buf.Capacity()),
				logger.Int("free", c.buf.Free()))
		}
		return n, ErrBufferFull
	}
	return n, errors.New(err).
		Category(errors.CategoryAudio).
		Context("operation", "chunker_write").
		Build()
}

// Next returns the next complete chunk, or false when not enough audio has
// been buffered yet.
func (c *Chunker) Next() (Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	windowBytes := conf.ChunkSamples * bytesPerSample
	if need := windowBytes - len(c.window); need > 0 {
		if c.buf.Length() < need {
			return Chunk{}, false
		}
		n, err := c.buf.Read(c.readBuf[:need])
		if err != nil {
			return Chunk{}, false
		}
		c.window = append(c.window, c.readBuf[:n]...)
	}

	samples, err := ConvertToFloat32(c.window, conf.BitDepth, 1)
	if err != nil {
		return Chunk{}, false
	}
	chunk := Chunk{Index: c.index, Offset: offsetForSample(c.position), Samples: samples}
	c.index++

	remaining := copy(c.window, c.window[c.hopBytes:])
	c.window = c.window[:remaining]
	c.position += c.hopBytes / bytesPerSample

	return chunk, true
}

// Dropped returns the number of PCM bytes discarded because the buffer was full.
func (c *Chunker) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Reset discards buffered audio and restarts chunk numbering.
func (c *Chunker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	c.window = c.window[:0]
	c.index = 0
	c.position = 0
	c.dropped = 0
	c.drops = 0
}
