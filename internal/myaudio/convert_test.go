package myaudio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToFloat32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pcm      []byte
		bitDepth int
		channels int
		want     []float32
	}{
		{"16 bit mono", []byte{0x00, 0x40, 0x00, 0xc0}, 16, 1, []float32{0.5, -0.5}},
		{"16 bit stereo averaged", []byte{0x00, 0x40, 0x00, 0x00}, 16, 2, []float32{0.25}},
		{"24 bit negative sign extended", []byte{0xff, 0xff, 0xff}, 24, 1, []float32{-1.0 / 8388608}},
		{"24 bit positive", []byte{0x00, 0x00, 0x40}, 24, 1, []float32{0.5}},
		{"32 bit", []byte{0x00, 0x00, 0x00, 0xc0}, 32, 1, []float32{-0.5}},
		{"partial frame ignored", []byte{0x00, 0x40, 0x00}, 16, 1, []float32{0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ConvertToFloat32(tt.pcm, tt.bitDepth, tt.channels)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvertToFloat32_Errors(t *testing.T) {
	t.Parallel()

	_, err := ConvertToFloat32([]byte{0, 0}, 12, 1)
	require.Error(t, err)
	_, err = ConvertToFloat32([]byte{0, 0}, 16, 0)
	require.Error(t, err)
}

func TestResampleAudio(t *testing.T) {
	t.Parallel()

	in := []float32{1, 2, 3}
	out, err := ResampleAudio(in, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ResampleAudio(in, 0, 48000)
	require.Error(t, err)

	const src, dst = 44100, 48000
	tone := make([]float32, src)
	for i := range tone {
		tone[i] = float32(math.Sin(2 * math.Pi * 1000 * float64(i) / src))
	}
	out, err = ResampleAudio(tone, src, dst)
	require.NoError(t, err)
	assert.InDelta(t, dst, len(out), 1)

	for i := 10; i < len(out)-10; i++ {
		want := math.Sin(2 * math.Pi * 1000 * float64(i) / dst)
		require.InDelta(t, want, out[i], 2e-3, "sample %d", i)
	}
}

func TestResampler_BlockBoundariesAreSeamless(t *testing.T) {
	t.Parallel()

	const src, dst = 32000, 48000
	// an odd length keeps the final output position off an integer boundary
	tone := make([]float32, src+3)
	for i := range tone {
		tone[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / src))
	}

	whole, err := ResampleAudio(tone, src, dst)
	require.NoError(t, err)

	r, err := newResampler(src, dst)
	require.NoError(t, err)
	var blocks []float32
	for start := 0; start < len(tone); start += 1000 {
		blocks = append(blocks, r.Process(tone[start:min(start+1000, len(tone))])...)
	}
	blocks = append(blocks, r.Flush()...)

	require.Len(t, blocks, len(whole))
	assert.InDeltaSlice(t, whole, blocks, 1e-5)
}
