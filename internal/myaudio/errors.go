package myaudio

import (
	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// Error sentinel values for common myaudio errors
var (
	// ErrStopReading may be returned by a ChunkCallback to end decoding
	// early. ReadAudioFile then returns nil.
	ErrStopReading = errors.NewStd("stop reading audio")

	// ErrUnsupportedFormat is returned for files other than WAV and FLAC.
	ErrUnsupportedFormat = errors.NewStd("unsupported audio format")

	// ErrBufferFull is returned by Chunker.Write when captured audio had to be dropped.
	ErrBufferFull = errors.NewStd("chunker buffer full")
)
