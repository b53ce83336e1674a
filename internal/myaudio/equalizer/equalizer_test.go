package equalizer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 48000.0
	testChunkLen   = 144000
)

func sine(freq, amplitude float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func newTestBandpass(t *testing.T) *BandpassFilter {
	t.Helper()
	bp, err := NewBandpass(testSampleRate, 80, 15000)
	require.NoError(t, err)
	return bp
}

// =============================================================================
// Unit Tests for Filter
// =============================================================================

func TestFilter_IsZero(t *testing.T) {
	t.Parallel()

	t.Run("uninitialized", func(t *testing.T) {
		f := &Filter{}
		assert.True(t, f.IsZero())
	})

	t.Run("initialized", func(t *testing.T) {
		f, err := NewLowPass(testSampleRate, 1000, ButterworthQ)
		require.NoError(t, err)
		assert.False(t, f.IsZero())
		assert.Equal(t, LowPass, f.Name())
		assert.Equal(t, "lowpass", f.Name().String())
	})
}

func TestNewFilter_InvalidParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sampleRate float64
		freq       float64
		q          float64
	}{
		{"zero cutoff", testSampleRate, 0, ButterworthQ},
		{"negative cutoff", testSampleRate, -10, ButterworthQ},
		{"at nyquist", testSampleRate, 24000, ButterworthQ},
		{"above nyquist", testSampleRate, 30000, ButterworthQ},
		{"zero q", testSampleRate, 1000, 0},
		{"zero sample rate", 0, 1000, ButterworthQ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLowPass(tt.sampleRate, tt.freq, tt.q)
			require.Error(t, err)
			_, err = NewHighPass(tt.sampleRate, tt.freq, tt.q)
			require.Error(t, err)
		})
	}
}

func TestFilter_LowPassPassesDC(t *testing.T) {
	t.Parallel()

	f, err := NewLowPass(testSampleRate, 1000, ButterworthQ)
	require.NoError(t, err)

	input := make([]float64, 2000)
	for i := range input {
		input[i] = 0.5
	}
	out := make([]float64, len(input))
	f.Process(input, out)

	for i := 1900; i < len(out); i++ {
		assert.InDelta(t, 0.5, out[i], 0.01, "DC should pass through lowpass (sample %d)", i)
	}
}

func TestFilter_HighPassBlocksDC(t *testing.T) {
	t.Parallel()

	f, err := NewHighPass(testSampleRate, 80, ButterworthQ)
	require.NoError(t, err)

	input := make([]float64, 48000)
	for i := range input {
		input[i] = 0.5
	}
	f.Process(input, input)

	assert.InDelta(t, 0.0, input[len(input)-1], 1e-3)
}

func TestFilter_StateResetEachCall(t *testing.T) {
	t.Parallel()

	f, err := NewHighPass(testSampleRate, 500, ButterworthQ)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	noise := make([]float64, 1024)
	for i := range noise {
		noise[i] = rng.Float64()*2 - 1
	}
	tone := sine(1000, 0.3, 256)

	first := make([]float64, len(tone))
	f.Process(tone, first)

	f.Process(noise, make([]float64, len(noise)))

	second := make([]float64, len(tone))
	f.Process(tone, second)

	assert.Equal(t, first, second, "output must not depend on previously filtered buffers")
}

// =============================================================================
// BandpassFilter properties
// =============================================================================

func TestNewBandpass_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewBandpass(testSampleRate, 15000, 80)
	require.Error(t, err)
	_, err = NewBandpass(testSampleRate, 0, 15000)
	require.Error(t, err)
	_, err = NewBandpass(testSampleRate, 80, 24000)
	require.Error(t, err)
}

func TestBandpass_FrequencyResponse(t *testing.T) {
	t.Parallel()

	bp := newTestBandpass(t)

	tests := []struct {
		freq     float64
		minRatio float64
		maxRatio float64
	}{
		{50, 0, 0.45},
		{80, 0.5, 1.0},
		{1000, 0.9, 1.1},
		{2000, 0.9, 1.1},
		{3000, 0.9, 1.1},
		{5000, 0.9, 1.1},
		{15000, 0.5, 1.0},
		{20000, 0, 0.3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.0fHz", tt.freq), func(t *testing.T) {
			t.Parallel()

			in := sine(tt.freq, 0.5, testChunkLen)
			out := bp.Apply(in)
			ratio := rms(out) / rms(in)

			assert.GreaterOrEqual(t, ratio, tt.minRatio)
			assert.LessOrEqual(t, ratio, tt.maxRatio)
		})
	}
}

func TestBandpass_SilenceInSilenceOut(t *testing.T) {
	t.Parallel()

	bp := newTestBandpass(t)
	out := bp.Apply(make([]float64, testChunkLen))
	assert.Less(t, rms(out), 1e-6)
}

func TestBandpass_LengthPreserved(t *testing.T) {
	t.Parallel()

	bp := newTestBandpass(t)
	for _, n := range []int{0, 1, 7, 4800, testChunkLen} {
		assert.Len(t, bp.Apply(make([]float64, n)), n)
	}
}

func TestBandpass_ApplyDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	bp := newTestBandpass(t)
	in := sine(3000, 0.4, 4800)
	orig := append([]float64(nil), in...)

	_ = bp.Apply(in)
	assert.Equal(t, orig, in)
}

func TestBandpass_ApplyInPlaceMatchesApply(t *testing.T) {
	t.Parallel()

	bp := newTestBandpass(t)
	in := sine(440, 0.4, 9600)
	want := bp.Apply(in)

	buf := append([]float64(nil), in...)
	bp.ApplyInPlace(buf)
	assert.Equal(t, want, buf)
	assert.InDelta(t, 80.0, bp.LowCut(), 1e-12)
	assert.InDelta(t, 15000.0, bp.HighCut(), 1e-12)
}

func BenchmarkBandpass_Apply(b *testing.B) {
	bp, err := NewBandpass(testSampleRate, 80, 15000)
	require.NoError(b, err)
	buf := sine(3000, 0.5, testChunkLen)

	b.ReportAllocs()
	for b.Loop() {
		bp.ApplyInPlace(buf)
	}
}
