package birdnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSplitSpeciesName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, sci, common string
	}{
		{"Turdus merula_Eurasian Blackbird", "Turdus merula", "Eurasian Blackbird"},
		{"Turdus merula_Eurasian Blackbird_eurbla", "Turdus merula", "Eurasian Blackbird"},
		{"Turdus merula", "Turdus merula", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		sci, common := SplitSpeciesName(tt.in)
		assert.Equal(t, tt.sci, sci, tt.in)
		assert.Equal(t, tt.common, common, tt.in)
	}
}

func TestLoadLabels_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"text", "labels.txt", "Turdus merula_Eurasian Blackbird\n\nParus major_Great Tit\n"},
		{"csv with header", "labels.csv", "scientific_name,common_name\nTurdus merula,Eurasian Blackbird\nParus major,Great Tit\n"},
		{"csv single column", "labels.csv", "Turdus merula_Eurasian Blackbird\nParus major_Great Tit\n"},
		{"json", "labels.json", `["Turdus merula_Eurasian Blackbird", "Parus major_Great Tit"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			labels, err := LoadLabels(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Equal(t, 2, labels.Len())
			assert.Equal(t, Label{"Turdus merula", "Eurasian Blackbird"}, labels.At(0))
			assert.Equal(t, Label{"Parus major", "Great Tit"}, labels.At(1))
		})
	}
}

func TestLoadLabels_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))

	_, err = LoadLabels(writeFile(t, "empty.txt", "\n\n"))
	require.Error(t, err)

	_, err = LoadLabels(writeFile(t, "bad.json", "{not json"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
}

func TestLabels_IndexOf(t *testing.T) {
	t.Parallel()

	labels := testLabels(4)
	i, ok := labels.IndexOf("parus MAJOR")
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = labels.IndexOf("Corvus corax")
	assert.False(t, ok)
	assert.Equal(t, "Parus major_Great Tit", labels.At(2).String())
}

func TestValidateLabels(t *testing.T) {
	t.Parallel()

	scorer := &fakeAudioScorer{raw: make([]float32, 3)}
	require.NoError(t, ValidateLabels(scorer, testLabels(3)))

	err := ValidateLabels(scorer, testLabels(4))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	require.Error(t, ValidateLabels(scorer, nil))
}
