package detection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
)

var testSpecies = map[string]birdnet.Detection{
	"blackbird": {ScientificName: "Turdus merula", CommonName: "Eurasian Blackbird", Index: 0},
	"thrush":    {ScientificName: "Turdus philomelos", CommonName: "Song Thrush", Index: 1},
	"tit":       {ScientificName: "Parus major", CommonName: "Great Tit", Index: 2},
	"robin":     {ScientificName: "Erithacus rubecula", CommonName: "European Robin", Index: 3},
	"engine":    {ScientificName: "Engine", CommonName: "Engine", Index: 4},
	"cricket":   {ScientificName: "Gryllus assimilis", CommonName: "Gray Field Cricket", Index: 5},
}

func det(name string, confidence float32) birdnet.Detection {
	d := testSpecies[name]
	d.Confidence = confidence
	return d
}

func chunk(dets ...birdnet.Detection) []birdnet.Detection { return dets }

func newTestAggregator(t *testing.T, mode Mode, opts ...AggregatorOption) *Aggregator {
	t.Helper()
	a, err := NewAggregator(mode, opts...)
	require.NoError(t, err)
	return a
}

// familyMap resolves families from a fixed table.
type familyMap map[string]string

func (m familyMap) FamilyOf(scientificName string) string { return m[scientificName] }

var testFamilies = familyMap{
	"Turdus merula":      "turdidae",
	"Turdus philomelos":  "turdidae",
	"Parus major":        "paridae",
	"Erithacus rubecula": "muscicapidae",
}
