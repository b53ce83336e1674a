package analysis

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/detection"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
)

func testObservations() []Observation {
	return []Observation{
		{Detection: det(blackbird, 0.91234), Begin: 0, End: 3 * time.Second},
		{Detection: birdnet.Detection{ScientificName: "Poecile atricapillus", CommonName: "Chickadee, Black-capped", Confidence: 0.5}, Begin: 1500 * time.Millisecond, End: 4500 * time.Millisecond},
	}
}

func TestObservations_FlattensInOrder(t *testing.T) {
	t.Parallel()

	results := []ChunkResult{
		{Index: 0, Offset: 0, End: 3 * time.Second, Detections: []birdnet.Detection{det(blackbird, 0.9), det(robin, 0.4)}},
		{Index: 1, Offset: 3 * time.Second, End: 6 * time.Second},
		{Index: 2, Offset: 6 * time.Second, End: 9 * time.Second, Detections: []birdnet.Detection{det(thrush, 0.7)}},
	}
	obs := observations(results)
	require.Len(t, obs, 3)
	assert.Equal(t, robin.ScientificName, obs[1].ScientificName)
	assert.Equal(t, 6*time.Second, obs[2].Begin)
	assert.Equal(t, 9*time.Second, obs[2].End)
}

func TestWriteNotesTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteNotesTable(&buf, testObservations(), "/data/dawn.wav", 80, 15000))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Selection\tView\tChannel\tBegin File\tBegin Time (s)\tEnd Time (s)\tLow Freq (Hz)\tHigh Freq (Hz)\tScientific Name\tCommon Name\tConfidence", lines[0])
	assert.Equal(t, "1\tSpectrogram 1\t1\tdawn.wav\t0.0\t3.0\t80\t15000\tTurdus merula\tEurasian Blackbird\t0.9123", lines[1])
	assert.Equal(t, "2\tSpectrogram 1\t1\tdawn.wav\t1.5\t4.5\t80\t15000\tPoecile atricapillus\tChickadee, Black-capped\t0.5000", lines[2])
}

func TestWriteNotesCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteNotesCSV(&buf, testObservations()))

	want := "Start (s),End (s),Scientific name,Common name,Confidence\n" +
		"0.0,3.0,Turdus merula,Eurasian Blackbird,0.9123\n" +
		"1.5,4.5,Poecile atricapillus,\"Chickadee, Black-capped\",0.5000\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteNotesCSV_HeaderOnlyWhenEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteNotesCSV(&buf, nil))
	assert.Equal(t, "Start (s),End (s),Scientific name,Common name,Confidence\n", buf.String())
}

func TestWriteConfirmed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	confirmed := []detection.ConfirmedDetection{
		{ScientificName: "Turdus merula", CommonName: "Eurasian Blackbird", Confidence: 0.912, Count: 4},
		{ScientificName: "Strix aluco", Confidence: 0.6, Count: 2},
	}
	require.NoError(t, WriteConfirmed(&buf, "Confirmed species", confirmed))

	out := buf.String()
	assert.Contains(t, out, "Confirmed species (2)")
	assert.Contains(t, out, "Eurasian Blackbird")
	assert.Contains(t, out, " 91.2% (4 chunks)")
	assert.Contains(t, out, " 60.0% (2 chunks)")
	// a species without a common name is listed by its scientific name
	assert.Equal(t, 2, strings.Count(out, "Strix aluco"))

	buf.Reset()
	require.NoError(t, WriteConfirmed(&buf, "Confirmed species", nil))
	assert.Contains(t, buf.String(), "Confirmed species (0)")
	assert.Contains(t, buf.String(), "no confirmed species")
}

func TestFormatLevel(t *testing.T) {
	t.Parallel()

	line := formatLevel(myaudio.AudioLevel{Level: 70, DB: -25, Clipping: true})
	assert.Contains(t, line, " 70/100")
	assert.Contains(t, line, "-25.0 dBFS")
	assert.Contains(t, line, "clipping")
	assert.True(t, strings.HasSuffix(line, "\n"))

	assert.NotContains(t, formatLevel(myaudio.AudioLevel{Level: 10, DB: -55}), "clipping")
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name string
		out  conf.OutputSettings
		want string
	}{
		{"stdout", conf.OutputSettings{Format: FormatTable}, ""},
		{"directory gets input name", conf.OutputSettings{Format: FormatTable, Path: dir}, filepath.Join(dir, "dawn.txt")},
		{"directory csv", conf.OutputSettings{Format: FormatCSV, Path: dir}, filepath.Join(dir, "dawn.csv")},
		{"file gets extension", conf.OutputSettings{Format: FormatCSV, Path: filepath.Join(dir, "notes")}, filepath.Join(dir, "notes.csv")},
		{"extension kept", conf.OutputSettings{Format: FormatTable, Path: filepath.Join(dir, "notes.txt")}, filepath.Join(dir, "notes.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, outputPath(&tt.out, "/recordings/dawn.wav"))
		})
	}
}

func TestWriteResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := testSettings(t, "batch")
	s.Output = conf.OutputSettings{Format: FormatCSV, Path: dir}
	report := &FileReport{Path: "/recordings/dawn.flac", Observations: testObservations()}

	var stdout bytes.Buffer
	path, err := writeResults(s, report, &stdout)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dawn.csv"), path)
	assert.Zero(t, stdout.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Start (s),End (s)"))
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestWriteResults_Stdout(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "batch")
	s.Output = conf.OutputSettings{}
	var stdout bytes.Buffer
	path, err := writeResults(s, &FileReport{Path: "dawn.wav", Observations: testObservations()}, &stdout)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.True(t, strings.HasPrefix(stdout.String(), "Selection\t"))
}

func TestWriteResults_UnknownFormat(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "batch")
	s.Output = conf.OutputSettings{Format: "json"}
	_, err := writeResults(s, &FileReport{Path: "dawn.wav"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
