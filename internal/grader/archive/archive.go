// Package archive unpacks submission archives into the grading workspace.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMarker        = "hw"
	defaultConcurrency   = 4
	defaultMaxEntryBytes = 64 << 20
)

type format int

const (
	formatUnknown format = iota
	formatZip
	formatTarZst
)

var suffixes = []struct {
	ext    string
	format format
}{
	{".tar.zst", formatTarZst},
	{".tzst", formatTarZst},
	{".zip", formatZip},
}

// Config controls archive ingestion.
type Config struct {
	Dir           string `yaml:"dir"`
	Marker        string `yaml:"marker"`
	Concurrency   int    `yaml:"concurrency"`
	MaxEntryBytes int64  `yaml:"maxEntryBytes"`
	// Bucket and Prefix select archives to download from object storage before extraction.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Extractor unpacks every archive whose name carries the homework marker.
type Extractor struct {
	marker        string
	concurrency   int
	maxEntryBytes int64
}

// NewExtractor creates an Extractor, filling unset fields with defaults.
func NewExtractor(cfg Config) *Extractor {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxEntryBytes <= 0 {
		cfg.MaxEntryBytes = defaultMaxEntryBytes
	}
	return &Extractor{marker: cfg.Marker, concurrency: cfg.Concurrency, maxEntryBytes: cfg.MaxEntryBytes}
}

// TargetName returns the submission directory name for an archive file name,
// or false when the archive is not a homework archive.
// "ivan_hw1.12345.zip" becomes "hw1.12345".
func (e *Extractor) TargetName(fileName string) (string, bool) {
	f, ext := detect(fileName)
	if f == formatUnknown {
		return "", false
	}
	idx := strings.Index(fileName, e.marker)
	if idx < 0 || idx >= len(fileName)-len(ext) {
		return "", false
	}
	name := strings.TrimSuffix(fileName[idx:], fileName[len(fileName)-len(ext):])
	if name == "" {
		return "", false
	}
	return name, true
}

// ExtractAll unpacks the archives in archivesDir into root and returns how many succeeded.
// A broken archive is logged and skipped.
func (e *Extractor) ExtractAll(ctx context.Context, archivesDir, root string) (int, error) {
	entries, err := os.ReadDir(archivesDir)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.ArchiveExtractFailed, "read archives dir %s", archivesDir)
	}

	var extracted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		target, ok := e.TargetName(name)
		if !ok {
			continue
		}
		src := filepath.Join(archivesDir, name)
		dest := filepath.Join(root, target)
		g.Go(func() error {
			if err := e.Extract(gctx, src, dest); err != nil {
				logger.Warn(gctx, "unable to extract", zap.String("archive", src), zap.Error(err))
				return nil
			}
			extracted.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info(ctx, "archives extracted", zap.String("dir", archivesDir), zap.Int64("count", extracted.Load()))
	return int(extracted.Load()), nil
}

// Extract unpacks a single archive into dest, creating dest first.
func (e *Extractor) Extract(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return appErr.Wrapf(err, appErr.ArchiveExtractFailed, "create %s", dest)
	}
	var err error
	switch f, _ := detect(filepath.Base(src)); f {
	case formatZip:
		err = ExtractZip(src, dest, e.maxEntryBytes)
	case formatTarZst:
		err = ExtractTarZst(src, dest, e.maxEntryBytes)
	default:
		return appErr.Newf(appErr.ArchiveExtractFailed, "unsupported archive %s", src)
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.ArchiveExtractFailed, "extract %s", src).WithDetail("archive", src)
	}
	return nil
}

func detect(fileName string) (format, string) {
	lower := strings.ToLower(fileName)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.format, s.ext
		}
	}
	return formatUnknown, ""
}
