package myaudio

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// wavHeaderSize is the canonical RIFF header length, used for size estimates.
const wavHeaderSize = 44

// wavReadFrames is the number of frames decoded per PCMBuffer call.
const wavReadFrames = 8 * 48000

func openWAV(file *os.File) (*wav.Decoder, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return nil, errors.Newf("invalid WAV file format").
			Category(errors.CategoryAudioDecode).
			Context("file", file.Name()).
			Build()
	}
	if _, err := getAudioDivisor(int(decoder.BitDepth)); err != nil {
		return nil, err
	}
	if decoder.NumChans < 1 {
		return nil, errors.Newf("invalid WAV channel count: %d", decoder.NumChans).
			Category(errors.CategoryAudioDecode).
			Context("file", file.Name()).
			Build()
	}
	return decoder, nil
}

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder, err := openWAV(file)
	if err != nil {
		return AudioInfo{}, err
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return AudioInfo{}, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "stat_audio_file").
			Build()
	}

	frameBytes := int64(decoder.BitDepth/8) * int64(decoder.NumChans)
	totalSamples := max(fileInfo.Size()-wavHeaderSize, 0) / frameBytes

	return AudioInfo{
		Format:       "wav",
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: int(totalSamples),
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

func readWAVBuffered(file *os.File, asm *chunkAssembler) error {
	decoder, err := openWAV(file)
	if err != nil {
		return err
	}

	channels := int(decoder.NumChans)
	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return err
	}

	GetLogger().Debug("decoding wav",
		logger.String("file", file.Name()),
		logger.Int("sample_rate", int(decoder.SampleRate)),
		logger.Int("bit_depth", int(decoder.BitDepth)),
		logger.Int("channels", channels))

	if err := asm.setSourceRate(int(decoder.SampleRate)); err != nil {
		return err
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadFrames*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryAudioDecode).
				Context("operation", "wav_pcm_buffer").
				Build()
		}
		if n == 0 {
			return nil
		}

		if err := asm.push(downmixInts(buf.Data[:n], channels, divisor)); err != nil {
			return err
		}
	}
}
