package analysis

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
	"github.com/tphakala/birdnet-pipeline/internal/observability/metrics"
)

// Models holds the assets of a session that every worker shares read only:
// the loaded model buffers, labels and taxonomy. Workers clone only the
// interpreter handles.
type Models struct {
	settings *conf.Settings
	audio    *birdnet.Model
	meta     *birdnet.Model // nil without a meta model
	labels   *birdnet.Labels
	taxonomy *birdnet.Taxonomy
}

// LoadModels loads the audio model, labels, optional meta model and taxonomy
// named by settings. Missing or unreadable assets fail fast.
func LoadModels(settings *conf.Settings) (*Models, error) {
	start := time.Now()
	bn := &settings.BirdNET
	if bn.ModelPath == "" || bn.LabelPath == "" {
		return nil, errors.Newf("model and label paths are required").
			Category(errors.CategoryConfiguration).
			Context("model_path", bn.ModelPath).
			Context("label_path", bn.LabelPath).
			Build()
	}

	m := &Models{settings: settings}
	var err error
	if m.audio, err = birdnet.LoadModel(bn.ModelPath); err != nil {
		return nil, err
	}
	if m.labels, err = birdnet.LoadLabels(bn.LabelPath); err != nil {
		m.Close()
		return nil, err
	}

	// a throwaway interpreter checks the label table against the output layer
	check, err := m.audio.NewTFLiteScorer(1)
	if err != nil {
		m.Close()
		return nil, err
	}
	err = birdnet.ValidateLabels(check, m.labels)
	check.Close()
	if err != nil {
		m.Close()
		return nil, err
	}

	if unknown := unknownSpecies(m.labels, settings.Aggregator.SpeciesThresholds); len(unknown) > 0 {
		GetLogger().Warn("species thresholds name species missing from the label table",
			logger.Any("species", unknown))
	}

	if bn.MetaModelPath != "" {
		if m.meta, err = birdnet.LoadModel(bn.MetaModelPath); err != nil {
			m.Close()
			return nil, err
		}
	}
	if m.taxonomy, err = birdnet.LoadTaxonomy(bn.TaxonomyPath); err != nil {
		m.Close()
		return nil, err
	}

	GetLogger().Info("models loaded",
		logger.String("model", bn.ModelPath),
		logger.Int("classes", m.labels.Len()),
		logger.Bool("meta_model", m.meta != nil),
		logger.Duration("duration", time.Since(start)))
	return m, nil
}

// Labels returns the shared label table.
func (m *Models) Labels() *birdnet.Labels { return m.labels }

// Taxonomy returns the shared family resolver.
func (m *Models) Taxonomy() *birdnet.Taxonomy { return m.taxonomy }

// HasMeta reports whether a meta model is loaded.
func (m *Models) HasMeta() bool { return m.meta != nil }

// MetaScorerFactory returns a factory of meta scorers, nil without a meta model.
func (m *Models) MetaScorerFactory() birdnet.MetaScorerFactory {
	if m.meta == nil {
		return nil
	}
	return m.meta.MetaScorerFactory()
}

// BuildMetaProfile builds the regional prior when a meta model is loaded and
// the region is enabled. It returns nil, nil otherwise.
func (m *Models) BuildMetaProfile(ctx context.Context, onProgress func(done, total int)) (*birdnet.MetaProfile, error) {
	region := &m.settings.BirdNET.Region
	if m.meta == nil || !region.Enabled {
		return nil, nil
	}
	return birdnet.BuildMetaProfile(ctx, m.meta.MetaScorerFactory(), birdnet.RegionFromSettings(*region),
		birdnet.BuildOptions{Workers: region.Workers, OnProgress: onProgress})
}

// LocationContext returns the recording location and week span, or nil when
// no location or meta model is configured.
func (m *Models) LocationContext(now time.Time) *birdnet.LocationContext {
	if m.meta == nil {
		return nil
	}
	return locationFromSettings(&m.settings.BirdNET, now)
}

// WorkerFactory returns a factory of ChunkAnalyzers. A non-nil profile takes
// precedence over live meta scoring at loc.
func (m *Models) WorkerFactory(profile *birdnet.MetaProfile, loc *birdnet.LocationContext, workers int, rec metrics.Recorder) WorkerFactory {
	threads := max(1, birdnet.ThreadCount(m.settings.BirdNET.Threads)/max(1, workers))
	newScorer := func() (birdnet.AudioScorer, error) {
		return m.audio.NewTFLiteScorer(threads)
	}
	var newMeta birdnet.MetaScorerFactory
	if profile == nil && loc != nil && m.meta != nil {
		newMeta = m.meta.MetaScorerFactory()
	}
	return newWorkerFactory(m.settings, m.labels, newScorer, newMeta, profile, loc, rec)
}

// Close releases the model buffers. Workers must be closed first.
func (m *Models) Close() {
	if m.audio != nil {
		m.audio.Close()
	}
	if m.meta != nil {
		m.meta.Close()
	}
}

func locationFromSettings(bn *conf.BirdNETConfig, now time.Time) *birdnet.LocationContext {
	if !bn.HasLocation() {
		return nil
	}
	from := bn.WeekFrom
	if from == 0 {
		from = birdnet.WeekForDate(now)
	}
	to := bn.WeekTo
	if to == 0 {
		to = from
	}
	return &birdnet.LocationContext{
		Latitude:  bn.Latitude,
		Longitude: bn.Longitude,
		WeekFrom:  from,
		WeekTo:    to,
	}
}

// unknownSpecies returns the override keys matching neither a scientific nor a
// common name in labels, sorted.
func unknownSpecies(labels *birdnet.Labels, overrides map[string]float64) []string {
	var unknown []string
	for name := range overrides {
		key := strings.TrimSpace(name)
		if _, ok := labels.IndexOf(key); ok {
			continue
		}
		if !hasCommonName(labels, key) {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	return unknown
}

func hasCommonName(labels *birdnet.Labels, name string) bool {
	for i := range labels.Len() {
		if strings.EqualFold(labels.At(i).CommonName, name) {
			return true
		}
	}
	return false
}

// newWorkerFactory builds workers from scorer constructors. newMeta may be nil.
func newWorkerFactory(settings *conf.Settings, labels *birdnet.Labels, newScorer func() (birdnet.AudioScorer, error),
	newMeta birdnet.MetaScorerFactory, profile *birdnet.MetaProfile, loc *birdnet.LocationContext, rec metrics.Recorder,
) WorkerFactory {
	procCfg := myaudio.ProcessorConfigFromSettings(&settings.Audio)
	bn := &settings.BirdNET

	return func() (Worker, error) {
		processor, err := myaudio.NewChunkProcessor(procCfg)
		if err != nil {
			return nil, err
		}

		scorer, err := newScorer()
		if err != nil {
			return nil, err
		}
		opts := []birdnet.ClassifierOption{
			birdnet.WithThreshold(float32(bn.Threshold)),
			birdnet.WithTopK(bn.TopK),
			birdnet.WithSensitivity(bn.Sensitivity),
			birdnet.WithAlphaTiers(birdnet.AlphaTiersFromSettings(bn.MetaAlpha)),
		}

		var meta birdnet.MetaScorer
		switch {
		case profile != nil:
			opts = append(opts, birdnet.WithMetaProfile(profile))
		case newMeta != nil && loc != nil:
			if meta, err = newMeta(); err != nil {
				scorer.Close()
				return nil, err
			}
			opts = append(opts, birdnet.WithMetaScorer(meta))
		}

		classifier, err := birdnet.NewClassifier(scorer, labels, opts...)
		if err != nil {
			scorer.Close()
			if meta != nil {
				meta.Close()
			}
			return nil, err
		}
		return NewChunkAnalyzer(processor, classifier, loc, rec), nil
	}
}
