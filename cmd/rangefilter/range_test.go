package rangefilter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

type fakeMeta struct {
	scores []float32
	byWeek map[int][]float32 // overrides scores for listed weeks
	weeks  []int
}

func (m *fakeMeta) NumClasses() int { return len(m.scores) }
func (m *fakeMeta) Close()          {}

func (m *fakeMeta) Score(_, _ float64, week int) ([]float32, error) {
	m.weeks = append(m.weeks, week)
	if s, ok := m.byWeek[week]; ok {
		return s, nil
	}
	return m.scores, nil
}

func at(weekFrom, weekTo int) *birdnet.LocationContext {
	return &birdnet.LocationContext{Latitude: 60.2, Longitude: 24.9, WeekFrom: weekFrom, WeekTo: weekTo}
}

func testLabels() *birdnet.Labels {
	return birdnet.NewLabels([]string{
		"Turdus merula_Eurasian Blackbird",
		"Erithacus rubecula_European Robin",
		"Strix aluco",
	})
}

func TestResolveWeek(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		date    string
		week    int
		want    int
		wantErr bool
	}{
		{name: "explicit week", week: 12, want: 12},
		{name: "date", date: "2026-03-30", want: 12},
		{name: "now", want: 39},
		{name: "week out of range", week: 49, wantErr: true},
		{name: "negative week", week: -1, wantErr: true},
		{name: "bad date", date: "30.3.2026", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolveWeek(tt.date, tt.week, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWeeks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		date     string
		to       string
		week     int
		wantFrom int
		wantTo   int
		wantErr  bool
	}{
		{name: "single week", week: 12, wantFrom: 12, wantTo: 12},
		{name: "date span", date: "2026-03-30", to: "2026-05-10", wantFrom: 12, wantTo: 18},
		{name: "span from today", to: "2026-12-31", wantFrom: 39, wantTo: 48},
		{name: "span wraps year end", date: "2026-12-20", to: "2027-01-05", wantFrom: 47, wantTo: 1},
		{name: "to with week", week: 3, to: "2026-05-10", wantErr: true},
		{name: "bad to", to: "10.5.2026", wantErr: true},
		{name: "bad from", date: "x", to: "2026-05-10", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			from, to, err := resolveWeeks(tt.date, tt.to, tt.week, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTo, to)
		})
	}
}

func TestSpeciesAt(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{scores: []float32{0.4, 0.9, 0.005}}
	got, err := speciesAt(meta, testLabels(), at(20, 20), 0.01)
	require.NoError(t, err)
	assert.Equal(t, []int{20}, meta.weeks)
	require.Len(t, got, 2)
	assert.Equal(t, "Erithacus rubecula", got[0].Label.ScientificName)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "Turdus merula", got[1].Label.ScientificName)
}

func TestSpeciesAt_LabelMismatch(t *testing.T) {
	t.Parallel()

	_, err := speciesAt(&fakeMeta{scores: []float32{1, 1}}, testLabels(), at(1, 1), 0)
	require.Error(t, err)
}

func TestSpeciesAt_WeekSpanTakesMaximum(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{
		scores: []float32{0.4, 0.005, 0.005},
		byWeek: map[int][]float32{
			1:  {0.1, 0.005, 0.3},
			48: {0.2, 0.6, 0.005},
		},
	}
	got, err := speciesAt(meta, testLabels(), at(47, 1), 0.01)
	require.NoError(t, err)
	assert.Equal(t, []int{47, 48, 1}, meta.weeks)
	require.Len(t, got, 3)
	assert.Equal(t, "Erithacus rubecula", got[0].Label.ScientificName)
	assert.InDelta(t, 0.6, got[0].Score, 1e-6)
	assert.Equal(t, "Turdus merula", got[1].Label.ScientificName)
	assert.InDelta(t, 0.4, got[1].Score, 1e-6)
	assert.Equal(t, "Strix aluco", got[2].Label.ScientificName)
}

func TestSpeciesAt_InvalidWeek(t *testing.T) {
	t.Parallel()

	_, err := speciesAt(&fakeMeta{scores: []float32{1, 1, 1}}, testLabels(), at(0, 3), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestPrintScores(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printScores(&buf, []birdnet.SpeciesScore{
		{Label: birdnet.Label{ScientificName: "Turdus merula", CommonName: "Eurasian Blackbird"}, Score: 0.5},
		{Label: birdnet.Label{ScientificName: "Strix aluco"}, Score: 0.25},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "   1  Eurasian Blackbird"))
	assert.True(t, strings.HasSuffix(lines[0], "0.5000"))
	assert.Equal(t, 2, strings.Count(lines[1], "Strix aluco"))
}

func TestLoadMeta_RequiresPaths(t *testing.T) {
	t.Parallel()

	s, err := conf.LoadDefaults(conf.ProfileBatch)
	require.NoError(t, err)
	_, _, err = loadMeta(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
