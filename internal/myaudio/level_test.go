package myaudio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateAudioLevel(t *testing.T) {
	t.Parallel()

	empty := CalculateAudioLevel(nil)
	assert.Zero(t, empty.Level)
	assert.True(t, math.IsInf(empty.DB, -1))

	// a constant of 328 is -40 dBFS
	quiet := make([]byte, 2000)
	for i := 0; i < len(quiet); i += 2 {
		quiet[i], quiet[i+1] = 0x48, 0x01
	}
	level := CalculateAudioLevel(quiet)
	assert.InDelta(t, -40, level.DB, 0.1)
	assert.Equal(t, 40, level.Level)
	assert.False(t, level.Clipping)

	clipped := constantPCM(1000, 0.001)
	clipped[10], clipped[11] = 0xff, 0x7f
	level = CalculateAudioLevel(clipped)
	assert.True(t, level.Clipping)
	assert.GreaterOrEqual(t, level.Level, 95)

	loud := constantPCM(1000, 0.99)
	assert.Equal(t, 100, CalculateAudioLevel(loud).Level)
}

func TestLevelMeter_RateLimited(t *testing.T) {
	t.Parallel()

	var published []AudioLevel
	m := NewLevelMeter(func(l AudioLevel) { published = append(published, l) })

	base := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	_, ok := m.Current()
	assert.False(t, ok)

	pcm := constantPCM(480, 0.1)
	assert.True(t, m.Update(pcm))
	assert.False(t, m.Update(pcm), "second update inside the interval")

	now = base.Add(LevelInterval / 2)
	assert.False(t, m.Update(pcm))

	now = base.Add(LevelInterval)
	assert.True(t, m.Update(pcm))

	// one second of 10 ms callbacks yields about ten updates
	count := 0
	for i := range 100 {
		now = base.Add(2*LevelInterval + time.Duration(i)*10*time.Millisecond)
		if m.Update(pcm) {
			count++
		}
	}
	assert.InDelta(t, 10, count, 1)

	current, ok := m.Current()
	assert.True(t, ok)
	assert.Equal(t, published[len(published)-1], current)
}
