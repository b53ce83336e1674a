package birdnet

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Region is a bounding box in degrees, padded and sampled on a square grid.
type Region struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	Padding        float64 // degrees added on every side
	GridStep       float64 // degrees between grid points
}

// RegionFromSettings converts configuration values.
func RegionFromSettings(s conf.RegionSettings) Region {
	return Region{
		MinLat:   s.MinLat,
		MaxLat:   s.MaxLat,
		MinLon:   s.MinLon,
		MaxLon:   s.MaxLon,
		Padding:  s.Padding,
		GridStep: s.GridStep,
	}
}

// Validate checks the box and grid parameters.
func (r Region) Validate() error {
	switch {
	case r.MinLat > r.MaxLat || r.MinLon > r.MaxLon:
		return fmt.Errorf("region minimum exceeds maximum")
	case r.MinLat < -90 || r.MaxLat > 90 || r.MinLon < -180 || r.MaxLon > 180:
		return fmt.Errorf("region outside [-90, 90] x [-180, 180]")
	case r.Padding < 0:
		return fmt.Errorf("region padding must not be negative")
	case r.GridStep <= 0 || math.IsNaN(r.GridStep):
		return fmt.Errorf("region grid step must be positive")
	}
	return nil
}

// axis returns evenly spaced points from lo to hi inclusive.
func axis(lo, hi, step float64) []float64 {
	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	points := make([]float64, n)
	for i := range points {
		points[i] = lo + float64(i)*step
	}
	return points
}

// Grid returns the latitude and longitude sample points of the padded box,
// clamped to valid coordinates.
func (r Region) Grid() (lats, lons []float64) {
	lats = axis(max(r.MinLat-r.Padding, -90), min(r.MaxLat+r.Padding, 90), r.GridStep)
	lons = axis(max(r.MinLon-r.Padding, -180), min(r.MaxLon+r.Padding, 180), r.GridStep)
	return lats, lons
}

// MetaProfile holds, per class, the highest meta score found anywhere in a
// region during any week. It is immutable once built and shared read only.
type MetaProfile struct {
	scores      []float32
	region      Region
	evaluations int
	duration    time.Duration
}

// NewMetaProfile wraps precomputed per-class ceilings. The slice is copied.
func NewMetaProfile(scores []float32, region Region) *MetaProfile {
	return &MetaProfile{scores: slices.Clone(scores), region: region}
}

// Len returns the number of classes.
func (p *MetaProfile) Len() int { return len(p.scores) }

// Score returns the ceiling of class i.
func (p *MetaProfile) Score(i int) float32 { return p.scores[i] }

// Region returns the region the profile was built for.
func (p *MetaProfile) Region() Region { return p.region }

// Evaluations returns the number of meta model calls made by the build.
func (p *MetaProfile) Evaluations() int { return p.evaluations }

// BuildTime returns how long the build took.
func (p *MetaProfile) BuildTime() time.Duration { return p.duration }

// Top returns the n most plausible classes, highest first.
func (p *MetaProfile) Top(n int, labels *Labels) []SpeciesScore {
	out := make([]SpeciesScore, 0, len(p.scores))
	for i, s := range p.scores {
		out = append(out, SpeciesScore{Index: i, Label: labels.At(i), Score: s})
	}
	slices.SortStableFunc(out, func(a, b SpeciesScore) int { return cmp.Compare(b.Score, a.Score) })
	return out[:min(n, len(out))]
}

// BuildOptions tunes BuildMetaProfile.
type BuildOptions struct {
	Workers    int                   // concurrent scorers, 0 selects the CPU count
	OnProgress func(done, total int) // called after each grid row, may be nil
}

// BuildMetaProfile evaluates the meta model at every grid point of region for
// weeks 1 to 48 and keeps the per-class maximum. Rows of the grid are shared
// out to workers, each owning a scorer from newScorer.
func BuildMetaProfile(ctx context.Context, newScorer MetaScorerFactory, region Region, opts BuildOptions) (*MetaProfile, error) {
	start := time.Now()
	if err := region.Validate(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "build_meta_profile").
			Build()
	}

	lats, lons := region.Grid()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(lats))

	log := GetLogger()
	log.Info("building meta profile",
		logger.Int("grid_points", len(lats)*len(lons)),
		logger.Int("evaluations", len(lats)*len(lons)*WeeksPerYear),
		logger.Int("workers", workers))

	rows := make(chan float64)
	partials := make([][]float32, workers)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		for _, lat := range lats {
			select {
			case rows <- lat:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := range workers {
		g.Go(func() error {
			scorer, err := newScorer()
			if err != nil {
				return err
			}
			defer scorer.Close()

			for lat := range rows {
				for _, lon := range lons {
					for week := 1; week <= WeeksPerYear; week++ {
						if err := gctx.Err(); err != nil {
							return err
						}
						s, err := scorer.Score(lat, lon, week)
						if err != nil {
							return err
						}
						partials[w] = mergeMax(partials[w], s)
					}
				}
				n := int(done.Add(1))
				if opts.OnProgress != nil {
					opts.OnProgress(n, len(lats))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.New(err).
				Category(errors.CategoryCancellation).
				Context("operation", "build_meta_profile").
				Context("rows_done", done.Load()).
				Build()
		}
		return nil, errors.New(err).
			Category(errors.CategoryMetaProfile).
			Context("rows_done", done.Load()).
			Timing("meta-profile-build", time.Since(start)).
			Build()
	}

	var scores []float32
	for _, p := range partials {
		scores = mergeMax(scores, p)
	}

	profile := &MetaProfile{
		scores:      scores,
		region:      region,
		evaluations: len(lats) * len(lons) * WeeksPerYear,
		duration:    time.Since(start),
	}
	log.Info("meta profile built",
		logger.Int("classes", profile.Len()),
		logger.Int("evaluations", profile.evaluations),
		logger.Duration("duration", profile.duration))
	return profile, nil
}

// mergeMax folds src into dst element-wise, allocating dst on first use.
func mergeMax(dst, src []float32) []float32 {
	if src == nil {
		return dst
	}
	if dst == nil {
		return slices.Clone(src)
	}
	for i := range dst {
		dst[i] = max(dst[i], src[i])
	}
	return dst
}
