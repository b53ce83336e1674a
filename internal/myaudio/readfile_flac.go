package myaudio

import (
	"io"
	"os"

	"github.com/tphakala/flac"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

func openFLAC(file *os.File) (*flac.Decoder, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioDecode).
			Context("operation", "open_flac").
			Context("file", file.Name()).
			Build()
	}
	return decoder, nil
}

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := openFLAC(file)
	if err != nil {
		return AudioInfo{}, err
	}

	return AudioInfo{
		Format:       "flac",
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

func readFLACBuffered(file *os.File, asm *chunkAssembler) error {
	decoder, err := openFLAC(file)
	if err != nil {
		return err
	}

	GetLogger().Debug("decoding flac",
		logger.String("file", file.Name()),
		logger.Int("sample_rate", decoder.SampleRate),
		logger.Int("bit_depth", decoder.BitsPerSample),
		logger.Int("channels", decoder.NChannels))

	if err := asm.setSourceRate(decoder.SampleRate); err != nil {
		return err
	}

	for {
		frame, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryAudioDecode).
				Context("operation", "flac_next_frame").
				Build()
		}

		samples, err := ConvertToFloat32(frame, decoder.BitsPerSample, decoder.NChannels)
		if err != nil {
			return err
		}
		if err := asm.push(samples); err != nil {
			return err
		}
	}
}
