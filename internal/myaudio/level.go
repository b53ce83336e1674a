package myaudio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LevelInterval is the minimum time between two level meter updates.
const LevelInterval = 100 * time.Millisecond

// AudioLevel is a snapshot of the input loudness.
type AudioLevel struct {
	RMS      float64   `json:"rms"`      // normalized to [0, 1]
	DB       float64   `json:"db"`       // dBFS, -inf for digital silence
	Level    int       `json:"level"`    // 0-100 display scale
	Clipping bool      `json:"clipping"` // a sample hit full scale
	Time     time.Time `json:"time"`
}

// CalculateAudioLevel measures 16 bit little endian PCM.
func CalculateAudioLevel(pcm []byte) AudioLevel {
	count := len(pcm) / 2
	if count == 0 {
		return AudioLevel{DB: math.Inf(-1)}
	}

	var sum float64
	clipping := false
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if sample == math.MaxInt16 || sample == math.MinInt16 {
			clipping = true
		}
		v := float64(sample)
		sum += v * v
	}

	rms := math.Sqrt(sum/float64(count)) / 32768.0
	db := 20 * math.Log10(rms)

	// -60 dBFS maps to 0 and -10 dBFS to 100
	scaled := (db + 60) * 2
	if clipping {
		scaled = max(scaled, 95)
	}
	scaled = min(max(scaled, 0), 100)

	return AudioLevel{RMS: rms, DB: db, Level: int(scaled), Clipping: clipping}
}

// LevelMeter publishes input levels at most once per LevelInterval.
// Update is safe to call from the capture callback.
type LevelMeter struct {
	limiter  *rate.Limiter
	current  atomic.Pointer[AudioLevel]
	onUpdate func(AudioLevel)
	now      func() time.Time
}

// NewLevelMeter returns a meter calling onUpdate, which may be nil, for every
// published level.
func NewLevelMeter(onUpdate func(AudioLevel)) *LevelMeter {
	return &LevelMeter{
		limiter:  rate.NewLimiter(rate.Every(LevelInterval), 1),
		onUpdate: onUpdate,
		now:      time.Now,
	}
}

// Update measures pcm when the rate limit allows and reports whether a new
// level was published.
func (m *LevelMeter) Update(pcm []byte) bool {
	now := m.now()
	if !m.limiter.AllowN(now, 1) {
		return false
	}
	level := CalculateAudioLevel(pcm)
	level.Time = now
	m.current.Store(&level)
	if m.onUpdate != nil {
		m.onUpdate(level)
	}
	return true
}

// Current returns the last published level.
func (m *LevelMeter) Current() (AudioLevel, bool) {
	l := m.current.Load()
	if l == nil {
		return AudioLevel{}, false
	}
	return *l, true
}
