package myaudio

import (
	"encoding/binary"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// getAudioDivisor returns the full scale value of a signed integer sample.
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported audio bit depth: %d", bitDepth).
			Category(errors.CategoryAudioDecode).
			Context("bit_depth", bitDepth).
			Context("supported_bit_depths", "16,24,32").
			Build()
	}
}

// ConvertToFloat32 converts little endian interleaved PCM to mono float32,
// averaging channels. Trailing bytes that do not form a whole frame are ignored.
func ConvertToFloat32(pcm []byte, bitDepth, channels int) ([]float32, error) {
	divisor, err := getAudioDivisor(bitDepth)
	if err != nil {
		return nil, err
	}
	if channels < 1 {
		return nil, errors.Newf("invalid channel count: %d", channels).
			Category(errors.CategoryValidation).
			Context("operation", "convert_to_float32").
			Build()
	}

	bytesPerSample := bitDepth / 8
	frameSize := bytesPerSample * channels
	frames := len(pcm) / frameSize
	out := make([]float32, frames)
	scale := divisor * float32(channels)

	for f := range frames {
		var sum int64
		base := f * frameSize
		for ch := range channels {
			sum += int64(decodeSample(pcm[base+ch*bytesPerSample:], bitDepth))
		}
		out[f] = float32(sum) / scale
	}

	return out, nil
}

// decodeSample reads one signed little endian sample.
func decodeSample(b []byte, bitDepth int) int32 {
	switch bitDepth {
	case 16:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		sample := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if sample&0x00800000 != 0 {
			sample |= ^0x00FFFFFF // two's complement sign extension
		}
		return sample
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}

// downmixInts converts interleaved integer samples to mono float32.
func downmixInts(data []int, channels int, divisor float32) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / channels
	out := make([]float32, frames)
	scale := divisor * float32(channels)
	for f := range frames {
		var sum int
		for ch := range channels {
			sum += data[f*channels+ch]
		}
		out[f] = float32(sum) / scale
	}
	return out
}
