package birdnet

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// AlphaTiers maps a meta score to the blend weight kept from the audio score.
// Plausible species keep a small alpha, so their score follows the meta
// score closely; implausible outliers get an alpha near zero and are all but
// suppressed.
type AlphaTiers struct {
	HighCut    float32 // meta >= HighCut uses HighAlpha
	MidCut     float32 // MidCut <= meta < HighCut uses MidAlpha
	LowCut     float32 // LowCut <= meta < MidCut uses LowAlpha
	HighAlpha  float32
	MidAlpha   float32
	LowAlpha   float32
	FloorAlpha float32 // meta < LowCut
}

// DefaultAlphaTiers returns the standard tier table.
func DefaultAlphaTiers() AlphaTiers {
	return AlphaTiers{
		HighCut:    0.30,
		MidCut:     0.05,
		LowCut:     0.01,
		HighAlpha:  0.10,
		MidAlpha:   0.50,
		LowAlpha:   0.25,
		FloorAlpha: 0.02,
	}
}

// AlphaTiersFromSettings converts configuration values.
func AlphaTiersFromSettings(s conf.MetaAlphaSettings) AlphaTiers {
	return AlphaTiers{
		HighCut:    float32(s.HighCut),
		MidCut:     float32(s.MidCut),
		LowCut:     float32(s.LowCut),
		HighAlpha:  float32(s.HighAlpha),
		MidAlpha:   float32(s.MidAlpha),
		LowAlpha:   float32(s.LowAlpha),
		FloorAlpha: float32(s.FloorAlpha),
	}
}

// Validate checks cut ordering and alpha ranges.
func (t AlphaTiers) Validate() error {
	if !(t.LowCut > 0 && t.LowCut < t.MidCut && t.MidCut < t.HighCut && t.HighCut <= 1) {
		return fmt.Errorf("alpha cuts must satisfy 0 < low < mid < high <= 1, got %g/%g/%g",
			t.LowCut, t.MidCut, t.HighCut)
	}
	for _, a := range []float32{t.HighAlpha, t.MidAlpha, t.LowAlpha, t.FloorAlpha} {
		if a < 0 || a > 1 {
			return fmt.Errorf("alpha %g out of range [0, 1]", a)
		}
	}
	return nil
}

// EffectiveAlpha returns the tier alpha for a meta score.
func (t AlphaTiers) EffectiveAlpha(meta float32) float32 {
	switch {
	case meta >= t.HighCut:
		return t.HighAlpha
	case meta >= t.MidCut:
		return t.MidAlpha
	case meta >= t.LowCut:
		return t.LowAlpha
	default:
		return t.FloorAlpha
	}
}

func factor(alpha, meta float32) float32 {
	return alpha + (1-alpha)*meta
}

// Factor returns the multiplier applied to an audio score, alpha + (1-alpha)*meta
// for the tier of meta. Where a tier boundary would make the multiplier drop,
// it is held at the value reached just below the boundary so that a more
// plausible species is never scored lower than a less plausible one. With the
// default tiers the multiplier stays at 0.65 for meta in [0.30, 0.611] where
// the high tier alone would give 0.1 + 0.9*meta.
func (t AlphaTiers) Factor(meta float32) float32 {
	meta = min(max(meta, 0), 1)
	f := factor(t.EffectiveAlpha(meta), meta)

	// supremum of the lower tiers at each boundary at or below meta
	if meta >= t.LowCut {
		f = max(f, factor(t.FloorAlpha, t.LowCut))
	}
	if meta >= t.MidCut {
		f = max(f, factor(t.LowAlpha, t.MidCut))
	}
	if meta >= t.HighCut {
		f = max(f, factor(t.MidAlpha, t.HighCut))
	}
	return f
}

// Blend applies the meta adjustment to one sigmoid score.
func (t AlphaTiers) Blend(score, meta float32) float32 {
	return score * t.Factor(meta)
}

const (
	metaCacheExpiration = time.Hour
	metaCacheMaxItems   = 256
)

// liveMeta evaluates a MetaScorer for a LocationContext, taking the maximum
// over the week range. Results are cached per rounded location and range.
type liveMeta struct {
	scorer MetaScorer
	cache  *cache.Cache
}

func newLiveMeta(scorer MetaScorer) *liveMeta {
	// no janitor goroutine; expired entries are skipped on read and the
	// cache is flushed when it grows past metaCacheMaxItems
	return &liveMeta{scorer: scorer, cache: cache.New(metaCacheExpiration, 0)}
}

func (m *liveMeta) scores(loc *LocationContext) ([]float32, error) {
	key := loc.cacheKey()
	if v, ok := m.cache.Get(key); ok {
		return v.([]float32), nil
	}

	if err := loc.Validate(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "meta_scores").
			Build()
	}

	var maxScores []float32
	for _, week := range loc.Weeks() {
		s, err := m.scorer.Score(loc.Latitude, loc.Longitude, week)
		if err != nil {
			return nil, err
		}
		if maxScores == nil {
			maxScores = append([]float32(nil), s...)
			continue
		}
		for i := range maxScores {
			maxScores[i] = max(maxScores[i], s[i])
		}
	}

	if m.cache.ItemCount() >= metaCacheMaxItems {
		m.cache.Flush()
	}
	m.cache.SetDefault(key, maxScores)
	return maxScores, nil
}
