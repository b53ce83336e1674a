package myaudio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// sine returns n samples of a tone at conf.SampleRate.
func sine(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/conf.SampleRate))
	}
	return out
}

// pcm16 encodes samples as 16 bit little endian PCM.
func pcm16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// writeTestWAV writes interleaved integer samples to a temporary WAV file.
func writeTestWAV(t *testing.T, name string, sampleRate, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

// monoToneWAV writes seconds of a 1 kHz tone as a mono WAV file.
func monoToneWAV(t *testing.T, sampleRate int, seconds float64) string {
	t.Helper()

	n := int(seconds * float64(sampleRate))
	data := make([]int, n)
	for i := range data {
		data[i] = int(8000 * math.Sin(2*math.Pi*1000*float64(i)/float64(sampleRate)))
	}
	return writeTestWAV(t, "tone.wav", sampleRate, 1, data)
}
