package analysis

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// staleLockAge is the age after which a leftover .processing lock is ignored.
const staleLockAge = 60 * time.Minute

// DirectoryReport summarizes one directory pass.
type DirectoryReport struct {
	Files   []*FileReport
	Skipped []string         // already processed or locked by another run
	Failed  map[string]error // per-file failures, the pass continues past them
}

// DirectoryAnalysis analyzes every WAV and FLAC file in dir, in name order,
// with models loaded once. Files whose output already exists are skipped.
// A failing file is recorded and the pass moves on; cancellation ends it.
func DirectoryAnalysis(ctx context.Context, settings *conf.Settings, dir string, opts ...FileOption) (*DirectoryReport, error) {
	files, err := audioFiles(dir)
	if err != nil {
		return nil, err
	}
	report := &DirectoryReport{Failed: make(map[string]error)}
	if len(files) == 0 {
		GetLogger().Info("no audio files found", logger.String("dir", dir))
		return report, nil
	}

	if settings.Output.Path != "" {
		if err := os.MkdirAll(settings.Output.Path, 0o755); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryFileIO).
				Context("operation", "create_output_dir").
				FileContext(settings.Output.Path, 0).
				Build()
		}
	}

	models, err := LoadModels(settings)
	if err != nil {
		return nil, err
	}
	defer models.Close()

	analyzer, err := NewFileAnalyzer(ctx, settings, models, opts...)
	if err != nil {
		return nil, err
	}

	log := GetLogger()
	start := time.Now()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, errors.New(err).
				Category(errors.CategoryCancellation).
				Context("operation", "directory_analysis").
				Context("files_done", len(report.Files)).
				Build()
		}

		unlock, ok := lockOutput(&settings.Output, path)
		if !ok {
			report.Skipped = append(report.Skipped, path)
			continue
		}
		fr, err := analyzer.Analyze(ctx, path)
		unlock()
		if fr != nil {
			report.Files = append(report.Files, fr)
		}
		if err != nil {
			if errors.IsCategory(err, errors.CategoryCancellation) {
				return report, err
			}
			log.Error("error analyzing file", logger.String("file", path), logger.Error(err))
			report.Failed[path] = err
		}
	}

	log.Info("directory analysis completed",
		logger.String("dir", dir),
		logger.Int("analyzed", len(report.Files)),
		logger.Int("skipped", len(report.Skipped)),
		logger.Int("failed", len(report.Failed)),
		logger.Duration("duration", time.Since(start)))
	return report, nil
}

// audioFiles lists the WAV and FLAC files directly inside dir, sorted.
func audioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "read_dir").
			FileContext(dir, 0).
			Build()
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".wav", ".flac":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// lockOutput claims the output of path for this run. It reports false when
// the output already exists or another run holds a fresh lock. Without an
// output path nothing is locked.
func lockOutput(out *conf.OutputSettings, path string) (unlock func(), ok bool) {
	target := outputPath(out, path)
	if target == "" {
		return func() {}, true
	}
	if _, err := os.Stat(target); err == nil {
		return nil, false
	}

	lock := target + ".processing"
	if info, err := os.Stat(lock); err == nil {
		if time.Since(info.ModTime()) <= staleLockAge {
			return nil, false
		}
		GetLogger().Warn("removing stale lock file", logger.String("lock", lock))
		_ = os.Remove(lock)
	}

	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		// another instance won the race
		return nil, false
	}
	_ = f.Close()
	return func() { _ = os.Remove(lock) }, true
}
